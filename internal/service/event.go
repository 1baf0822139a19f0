package service

import (
	"context"
	"log"

	"github.com/xiaot623/warelay/internal/metrics"
	"github.com/xiaot623/warelay/internal/protocol"
	"github.com/xiaot623/warelay/internal/qr"
	"github.com/xiaot623/warelay/internal/whatsapp"
)

// HandleEvent is the only listener registered on the messenger. Every
// handler logs its own failures and returns.
func (s *Service) HandleEvent(evt whatsapp.Event) {
	s.metrics.LifecycleEvents.WithLabelValues(string(evt.Type)).Inc()

	switch evt.Type {
	case whatsapp.EventReady:
		s.onReady(evt.Info)
	case whatsapp.EventQR:
		s.onQR(evt.QR)
	case whatsapp.EventMessageAck:
		s.enqueueAck(evt.Ack)
	case whatsapp.EventCall:
		s.onCall(evt.Call)
	case whatsapp.EventDisconnected:
		s.onDisconnected(evt.Reason)
	case whatsapp.EventMessage:
		if m := evt.Message; m != nil {
			log.Printf("Message received: id=%s from=%s body=%q", m.ID, m.From, m.Body)
		}
	case whatsapp.EventAuthenticated:
		if evt.Info != nil {
			log.Printf("Authenticated as %s (%s)", evt.Info.JID, evt.Info.Platform)
		} else {
			log.Printf("Authenticated")
		}
	case whatsapp.EventAuthFailure:
		log.Printf("WARN: authentication failure: %s", evt.Reason)
	default:
		log.Printf("WARN: unhandled event type %q", evt.Type)
	}
}

func (s *Service) onReady(info *whatsapp.Info) {
	if info == nil {
		info = s.messenger.Info()
	}
	var blob interface{} = struct{}{}
	if info != nil {
		blob = info
	}
	if err := s.marker.Write(blob); err != nil {
		log.Printf("WARN: %v", err)
	}
	s.setReadyGauge()

	if err := s.hub.BroadcastJSON(protocol.Ready()); err != nil {
		log.Printf("WARN: failed to broadcast ready: %v", err)
	}
	log.Println("ready")
}

func (s *Service) onQR(code string) {
	url, err := qr.DataURL(code)
	if err != nil {
		log.Printf("WARN: %v", err)
		return
	}
	if err := s.hub.BroadcastJSON(protocol.QR(url)); err != nil {
		log.Printf("WARN: failed to broadcast qr: %v", err)
	}
}

func (s *Service) enqueueAck(a *whatsapp.Ack) {
	if a == nil || a.To == "" {
		return
	}
	select {
	case s.ackQueue <- *a:
	default:
		s.metrics.AcksPersisted.WithLabelValues(metrics.ResultDropped).Inc()
		log.Printf("WARN: ack queue full, dropping to=%s ack=%d", a.To, a.Level)
	}
}

func (s *Service) persistAcks() {
	defer s.wg.Done()
	for {
		select {
		case a := <-s.ackQueue:
			s.onAck(a)
		case <-s.done:
			return
		}
	}
}

func (s *Service) onAck(a whatsapp.Ack) {
	ctx, cancel := context.WithTimeout(context.Background(), s.ackTimeout)
	defer cancel()

	n, err := s.acks.UpdateAck(ctx, a.To, a.Level)
	switch {
	case err != nil:
		s.metrics.AcksPersisted.WithLabelValues(metrics.ResultError).Inc()
		log.Printf("WARN: ack update failed: to=%s ack=%d: %v", a.To, a.Level, err)
		return
	case n == 0:
		s.metrics.AcksPersisted.WithLabelValues(metrics.ResultSkipped).Inc()
	default:
		s.metrics.AcksPersisted.WithLabelValues(metrics.ResultOK).Inc()
	}
	log.Printf("%s %d", a.To, a.Level)
}

func (s *Service) onCall(call *whatsapp.Call) {
	if call == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.ackTimeout)
	defer cancel()

	if err := s.messenger.RejectCall(ctx, *call); err != nil {
		log.Printf("WARN: %v", err)
		return
	}
	log.Printf("Call rejected: id=%s from=%s", call.ID, call.From)
}

func (s *Service) onDisconnected(reason string) {
	if err := s.marker.Remove(); err != nil {
		log.Printf("WARN: %v", err)
	}
	s.setReadyGauge()
	log.Printf("Disconnected: %s", reason)
}
