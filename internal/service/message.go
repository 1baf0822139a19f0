package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/xiaot623/warelay/internal/metrics"
	"github.com/xiaot623/warelay/internal/whatsapp"
)

var (
	// ErrNotRegistered is returned when the recipient has no WhatsApp account.
	ErrNotRegistered = errors.New("not registered")
	// ErrRegistrationCheck wraps failures of the registration lookup itself.
	ErrRegistrationCheck = errors.New("registration check failed")
)

// SendText checks that number is registered and sends message to it.
func (s *Service) SendText(ctx context.Context, number, message string) (*whatsapp.DeliveryInfo, error) {
	registered, err := s.messenger.IsRegisteredUser(ctx, number)
	if err != nil {
		s.metrics.MessagesSent.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: %w", ErrRegistrationCheck, err)
	}
	if !registered {
		s.metrics.MessagesSent.WithLabelValues(metrics.ResultNotFound).Inc()
		return nil, ErrNotRegistered
	}

	info, err := s.messenger.SendMessage(ctx, number, message)
	if err != nil {
		s.metrics.MessagesSent.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	}
	s.metrics.MessagesSent.WithLabelValues(metrics.ResultOK).Inc()
	return info, nil
}

// RequestPairingCode asks for a code to link this relay by phone number.
func (s *Service) RequestPairingCode(ctx context.Context, number string) (string, error) {
	code, err := s.messenger.RequestPairingCode(ctx, number)
	if err != nil {
		return "", err
	}
	log.Printf("Pairing code issued for %s", number)
	return code, nil
}

// Logout removes the session marker and logs the messenger out. The marker
// is removed even when the logout itself fails.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.marker.Remove(); err != nil {
		log.Printf("WARN: %v", err)
	}
	s.setReadyGauge()

	if err := s.messenger.Logout(ctx); err != nil {
		return err
	}
	return nil
}
