// Package main provides a small CLI that watches the relay's real-time
// channel and saves pairing QR codes to disk.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Event types
const (
	TypeReady = "ready"
	TypeQR    = "qr"
)

const dataURLPrefix = "data:image/png;base64,"

// Event is a frame pushed by the relay.
type Event struct {
	Type string `json:"type"`
	Data string `json:"data"`
	Ts   int64  `json:"ts"`
}

// Client represents a WebSocket client.
type Client struct {
	conn  *websocket.Conn
	qrOut string
	once  bool
	done  chan struct{}
}

// NewClient creates a new client and connects to the relay.
func NewClient(addr, qrOut string, once bool) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn:  conn,
		qrOut: qrOut,
		once:  once,
		done:  make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ReadEvents reads and prints events until the connection ends, or until
// the session is ready when once is set.
func (c *Client) ReadEvents() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("Read error: %v", err)
			}
			return
		}

		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Printf("Unmarshal error: %v", err)
			continue
		}

		switch evt.Type {
		case TypeQR:
			if err := c.saveQR(evt.Data); err != nil {
				log.Printf("Failed to save QR code: %v", err)
				continue
			}
			fmt.Printf("[%s] QR code written to %s, scan it with WhatsApp\n", stamp(evt.Ts), c.qrOut)
		case TypeReady:
			fmt.Printf("[%s] %s\n", stamp(evt.Ts), evt.Data)
			if c.once {
				return
			}
		default:
			fmt.Printf("[%s] %s: %s\n", stamp(evt.Ts), evt.Type, evt.Data)
		}
	}
}

func (c *Client) saveQR(dataURL string) error {
	if !strings.HasPrefix(dataURL, dataURLPrefix) {
		return fmt.Errorf("unexpected qr payload")
	}
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, dataURLPrefix))
	if err != nil {
		return fmt.Errorf("decode qr: %w", err)
	}
	return os.WriteFile(c.qrOut, png, 0o644)
}

func stamp(ts int64) string {
	return time.UnixMilli(ts).Format(time.TimeOnly)
}

func main() {
	addr := flag.String("addr", "ws://localhost:8000/ws", "Relay WebSocket address")
	qrOut := flag.String("qr-out", "qr.png", "File to write pairing QR codes to")
	once := flag.Bool("once", false, "Exit once the session is ready")
	flag.Parse()

	log.SetFlags(log.Ltime)

	fmt.Printf("Connecting to %s...\n", *addr)

	client, err := NewClient(*addr, *qrOut, *once)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	fmt.Println("Connected. Waiting for events...")

	go client.ReadEvents()

	// Handle Ctrl+C
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-interrupt:
		fmt.Println("\nInterrupted")
	case <-client.done:
	}
}
