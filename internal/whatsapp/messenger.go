// Package whatsapp wraps the WhatsApp client library behind the small
// contract the relay needs, and translates its events into lifecycle events.
package whatsapp

import (
	"context"
	"errors"
	"time"
)

// Errors returned by messengers.
var (
	ErrNotConnected  = errors.New("whatsapp client is not logged in")
	ErrInvalidNumber = errors.New("invalid phone number")
)

// EventType names a lifecycle event.
type EventType string

// Lifecycle events.
const (
	EventReady         EventType = "ready"
	EventMessage       EventType = "message"
	EventMessageAck    EventType = "message_ack"
	EventCall          EventType = "call"
	EventAuthFailure   EventType = "auth_failure"
	EventAuthenticated EventType = "authenticated"
	EventQR            EventType = "qr"
	EventDisconnected  EventType = "disconnected"
)

// Acknowledgement levels.
const (
	AckError   = -1
	AckPending = 0
	AckServer  = 1
	AckDevice  = 2
	AckRead    = 3
	AckPlayed  = 4
)

// Event is emitted by a messenger. Only the field matching Type is set.
type Event struct {
	Type    EventType
	QR      string
	Info    *Info
	Message *InboundMessage
	Ack     *Ack
	Call    *Call
	Reason  string
}

// Info is the client's self-reported identity, stored in the session marker.
type Info struct {
	Wid      string `json:"wid"`
	JID      string `json:"jid"`
	Pushname string `json:"pushname"`
	Platform string `json:"platform"`
}

// InboundMessage is a received message.
type InboundMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Chat      string    `json:"chat"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Ack reports a new acknowledgement level for a sent message.
type Ack struct {
	To         string   `json:"to"`
	Level      int      `json:"ack"`
	MessageIDs []string `json:"message_ids"`
}

// Call is an inbound call offer.
type Call struct {
	ID   string `json:"id"`
	From string `json:"from"`
}

// DeliveryInfo describes a message accepted by the server.
type DeliveryInfo struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler receives lifecycle events.
type Handler func(Event)

// Messenger is the relay's view of the messaging client.
type Messenger interface {
	Start(ctx context.Context) error
	Stop()
	OnEvent(h Handler)
	IsRegisteredUser(ctx context.Context, number string) (bool, error)
	SendMessage(ctx context.Context, number, text string) (*DeliveryInfo, error)
	RequestPairingCode(ctx context.Context, number string) (string, error)
	RejectCall(ctx context.Context, call Call) error
	Logout(ctx context.Context) error
	Info() *Info
}
