// Package service holds the single WhatsApp session and reacts to its
// lifecycle events on behalf of the HTTP and real-time layers.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/xiaot623/warelay/internal/ack"
	"github.com/xiaot623/warelay/internal/hub"
	"github.com/xiaot623/warelay/internal/metrics"
	"github.com/xiaot623/warelay/internal/session"
	"github.com/xiaot623/warelay/internal/whatsapp"
)

// Service is constructed once per process and shared by the transports.
type Service struct {
	messenger  whatsapp.Messenger
	marker     *session.Marker
	acks       ack.Store
	hub        *hub.Hub
	metrics    *metrics.Metrics
	ackTimeout time.Duration

	// Acks are persisted in arrival order by one worker, off the
	// messenger's event loop and the send path.
	ackQueue chan whatsapp.Ack
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ackQueueSize bounds pending acknowledgement writes. Acks beyond it are
// dropped and counted.
const ackQueueSize = 1024

func New(messenger whatsapp.Messenger, marker *session.Marker, acks ack.Store, h *hub.Hub, m *metrics.Metrics, ackTimeout time.Duration) *Service {
	if ackTimeout <= 0 {
		ackTimeout = 10 * time.Second
	}
	return &Service{
		messenger:  messenger,
		marker:     marker,
		acks:       acks,
		hub:        h,
		metrics:    m,
		ackTimeout: ackTimeout,
		ackQueue:   make(chan whatsapp.Ack, ackQueueSize),
		done:       make(chan struct{}),
	}
}

// Start subscribes to the messenger and connects it.
func (s *Service) Start(ctx context.Context) error {
	s.wg.Add(1)
	go s.persistAcks()

	s.messenger.OnEvent(s.HandleEvent)
	s.setReadyGauge()
	return s.messenger.Start(ctx)
}

// Stop disconnects the messenger and waits for the ack worker. Acks still
// queued are discarded.
func (s *Service) Stop() {
	s.messenger.Stop()
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

// Ready reports whether the session marker exists.
func (s *Service) Ready() bool {
	return s.marker.Exists()
}

func (s *Service) setReadyGauge() {
	if s.Ready() {
		s.metrics.SessionReady.Set(1)
	} else {
		s.metrics.SessionReady.Set(0)
	}
}
