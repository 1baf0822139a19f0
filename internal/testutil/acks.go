package testutil

import (
	"context"
	"sync"
)

// AckUpdate records one UpdateAck call.
type AckUpdate struct {
	Number string
	Level  int
}

// FakeAckStore records acknowledgement updates.
type FakeAckStore struct {
	mu      sync.Mutex
	Updates []AckUpdate
	Err     error

	// Hold, when set, stalls every update until it is closed or the
	// context ends.
	Hold chan struct{}
}

func (s *FakeAckStore) UpdateAck(ctx context.Context, number string, level int) (int64, error) {
	if s.Hold != nil {
		select {
		case <-s.Hold:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Updates = append(s.Updates, AckUpdate{Number: number, Level: level})
	return 1, nil
}

// Snapshot returns a copy of the recorded updates.
func (s *FakeAckStore) Snapshot() []AckUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AckUpdate(nil), s.Updates...)
}
