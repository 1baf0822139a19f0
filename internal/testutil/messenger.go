// Package testutil provides fakes shared by the relay's tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/xiaot623/warelay/internal/whatsapp"
)

// FakeMessenger is an in-memory whatsapp.Messenger.
type FakeMessenger struct {
	mu sync.Mutex

	// Registered numbers, keyed by normalized digits.
	Registered map[string]bool

	CheckErr   error
	SendErr    error
	PairingErr error
	LogoutErr  error
	RejectErr  error

	PairingCode string
	Identity    *whatsapp.Info

	// AckOnSend emits the server acknowledgement from inside SendMessage,
	// as the whatsmeow client does.
	AckOnSend bool

	Sent     []SentMessage
	Rejected []whatsapp.Call
	Logouts  int
	Started  bool
	Stopped  bool

	handler whatsapp.Handler
}

// SentMessage records one SendMessage call.
type SentMessage struct {
	Number string
	Text   string
}

// NewFakeMessenger returns a messenger that knows the given numbers.
func NewFakeMessenger(registered ...string) *FakeMessenger {
	f := &FakeMessenger{
		Registered:  make(map[string]bool),
		PairingCode: "ABCD-EFGH",
	}
	for _, n := range registered {
		f.Registered[n] = true
	}
	return f
}

func (f *FakeMessenger) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Started = true
	return nil
}

func (f *FakeMessenger) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stopped = true
}

func (f *FakeMessenger) OnEvent(h whatsapp.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

// Emit delivers evt to the registered handler.
func (f *FakeMessenger) Emit(evt whatsapp.Event) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

func (f *FakeMessenger) IsRegisteredUser(ctx context.Context, number string) (bool, error) {
	if f.CheckErr != nil {
		return false, f.CheckErr
	}
	digits, err := whatsapp.NormalizeNumber(number)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Registered[digits], nil
}

func (f *FakeMessenger) SendMessage(ctx context.Context, number, text string) (*whatsapp.DeliveryInfo, error) {
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	digits, err := whatsapp.NormalizeNumber(number)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.Sent = append(f.Sent, SentMessage{Number: digits, Text: text})
	ackOnSend := f.AckOnSend
	f.mu.Unlock()
	if ackOnSend {
		f.Emit(whatsapp.Event{Type: whatsapp.EventMessageAck, Ack: &whatsapp.Ack{
			To:         digits,
			Level:      whatsapp.AckServer,
			MessageIDs: []string{"3EB0FAKE"},
		}})
	}
	return &whatsapp.DeliveryInfo{
		ID:        "3EB0FAKE",
		To:        digits + "@s.whatsapp.net",
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}, nil
}

func (f *FakeMessenger) RequestPairingCode(ctx context.Context, number string) (string, error) {
	if f.PairingErr != nil {
		return "", f.PairingErr
	}
	return f.PairingCode, nil
}

func (f *FakeMessenger) RejectCall(ctx context.Context, call whatsapp.Call) error {
	if f.RejectErr != nil {
		return f.RejectErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Rejected = append(f.Rejected, call)
	return nil
}

func (f *FakeMessenger) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.Logouts++
	f.mu.Unlock()
	return f.LogoutErr
}

func (f *FakeMessenger) Info() *whatsapp.Info {
	return f.Identity
}

var _ whatsapp.Messenger = (*FakeMessenger)(nil)
