package service

import (
	"sync"

	"github.com/velvetcast/session-service/internal/registry"
)

// RecordedBroadcast is one fan-out captured by the recording broadcaster.
type RecordedBroadcast struct {
	Members []registry.Member
	Message interface{}
}

// RecordedDirect is one direct send captured by the recording broadcaster.
type RecordedDirect struct {
	ConnectionID string
	Message      interface{}
}

// RecordingBroadcaster captures fan-outs instead of writing to sockets.
type RecordingBroadcaster struct {
	mu         sync.Mutex
	Broadcasts []RecordedBroadcast
	Directs    []RecordedDirect
}

func NewRecordingBroadcaster() *RecordingBroadcaster {
	return &RecordingBroadcaster{}
}

func (r *RecordingBroadcaster) BroadcastToMembers(members []registry.Member, message interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Broadcasts = append(r.Broadcasts, RecordedBroadcast{Members: members, Message: message})
}

func (r *RecordingBroadcaster) SendToConnection(connectionID string, message interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Directs = append(r.Directs, RecordedDirect{ConnectionID: connectionID, Message: message})
}

// BroadcastsOfType returns the captured fan-outs whose message matches
// the given predicate.
func (r *RecordingBroadcaster) BroadcastsOfType(match func(interface{}) bool) []RecordedBroadcast {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RecordedBroadcast
	for _, b := range r.Broadcasts {
		if match(b.Message) {
			out = append(out, b)
		}
	}
	return out
}

// Reset clears all captured messages.
func (r *RecordingBroadcaster) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Broadcasts = nil
	r.Directs = nil
}
