package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBeginBroadcastGuardsDuplicates(t *testing.T) {
	s := NewStream("s1", "perf-1")
	at := time.Now()

	assert.True(t, s.BeginBroadcast(at))
	assert.False(t, s.BeginBroadcast(at.Add(time.Second)))
	assert.True(t, s.IsLive())

	started, _ := s.Timestamps()
	assert.Equal(t, at, *started)
}

func TestEndBroadcastGuardsDuplicates(t *testing.T) {
	s := NewStream("s1", "perf-1")
	at := time.Now()

	// Ending an idle stream does nothing.
	_, ok := s.EndBroadcast(at)
	assert.False(t, ok)

	s.BeginBroadcast(at)
	elapsed, ok := s.EndBroadcast(at.Add(5 * time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 5*time.Minute, elapsed)
	assert.False(t, s.IsLive())

	_, ok = s.EndBroadcast(at.Add(6 * time.Minute))
	assert.False(t, ok)
}

func TestStreamRestartsCleanly(t *testing.T) {
	s := NewStream("s1", "perf-1")
	at := time.Now()

	s.BeginBroadcast(at)
	s.EndBroadcast(at.Add(time.Minute))

	assert.True(t, s.BeginBroadcast(at.Add(2*time.Minute)))
	elapsed, ok := s.EndBroadcast(at.Add(3 * time.Minute))
	assert.True(t, ok)
	assert.Equal(t, time.Minute, elapsed)
}
