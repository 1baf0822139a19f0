// Package protocol defines the real-time messages sent from the relay to
// browser clients.
package protocol

import "time"

// Event types from relay to client
const (
	TypeReady = "ready"
	TypeQR    = "qr"
	TypeError = "error"
)

// ReadyText is the payload of every ready event.
const ReadyText = "Whatsapp is ready!"

// Event is a single real-time frame. Data is a string so that browser
// clients can use it directly (ready text, QR data URL).
type Event struct {
	Type string `json:"type"`
	Data string `json:"data"`
	Ts   int64  `json:"ts"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType, data string) Event {
	return Event{
		Type: eventType,
		Data: data,
		Ts:   time.Now().UnixMilli(),
	}
}

// Ready returns the ready event.
func Ready() Event {
	return NewEvent(TypeReady, ReadyText)
}

// QR returns a qr event carrying a data URL image.
func QR(dataURL string) Event {
	return NewEvent(TypeQR, dataURL)
}
