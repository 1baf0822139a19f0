package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/warelay/internal/ack"
	"github.com/xiaot623/warelay/internal/metrics"
	"github.com/xiaot623/warelay/internal/service"
	"github.com/xiaot623/warelay/internal/whatsapp"
)

// flexString accepts both JSON strings and numbers, since callers often
// post phone numbers unquoted.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// SendTextRequest is the body of POST /send-text (JSON or form).
type SendTextRequest struct {
	Number  flexString `json:"number" form:"number"`
	Message string     `json:"message" form:"message"`
}

// PairingCodeRequest is the body of POST /request-pairing-code.
type PairingCodeRequest struct {
	Number flexString `json:"number" form:"number"`
}

// SendTextResponse is returned by POST /send-text.
type SendTextResponse struct {
	Status   bool        `json:"status"`
	Ack      int         `json:"ack"`
	Message  string      `json:"message"`
	Response interface{} `json:"response,omitempty"`
}

// StatusResponse is returned by the pairing and logout routes.
type StatusResponse struct {
	Status   bool   `json:"status"`
	Message  string `json:"message,omitempty"`
	Response string `json:"response,omitempty"`
}

func (s *Server) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(c.Request().Context(), timeout)
}

// handleSendText sends a text message to a registered number.
// POST /send-text
func (s *Server) handleSendText(c echo.Context) error {
	var req SendTextRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, SendTextResponse{Message: "invalid request body"})
	}
	number := strings.TrimSpace(string(req.Number))
	if number == "" || req.Message == "" {
		return c.JSON(http.StatusBadRequest, SendTextResponse{Message: "number and message are required"})
	}

	// Invalid numbers are not tracked per recipient; the send rejects them.
	recipient, _ := whatsapp.NormalizeNumber(number)
	if !s.limiter.AllowSend(c.RealIP(), recipient, time.Now()) {
		s.metrics.MessagesSent.WithLabelValues(metrics.ResultRateLimited).Inc()
		return c.JSON(http.StatusTooManyRequests, SendTextResponse{Message: "Too many requests"})
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	info, err := s.service.SendText(ctx, number, req.Message)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, SendTextResponse{
			Status:   true,
			Ack:      whatsapp.AckPending,
			Message:  "Sent",
			Response: info,
		})

	case errors.Is(err, service.ErrNotRegistered), errors.Is(err, whatsapp.ErrInvalidNumber):
		return c.JSON(http.StatusNotFound, SendTextResponse{
			Status:  false,
			Ack:     ack.LevelTerminal,
			Message: "Not registered",
		})

	case errors.Is(err, service.ErrRegistrationCheck):
		log.Printf("WARN: registration check for %s failed: %v", number, err)
		return c.JSON(http.StatusInternalServerError, SendTextResponse{
			Status:   false,
			Ack:      whatsapp.AckPending,
			Message:  "Registration check failed",
			Response: err.Error(),
		})

	default:
		log.Printf("WARN: send to %s failed: %v", number, err)
		return c.JSON(http.StatusInternalServerError, SendTextResponse{
			Status:   false,
			Ack:      whatsapp.AckPending,
			Message:  "Not sent",
			Response: err.Error(),
		})
	}
}

// handleRequestPairingCode requests a code for linking by phone number.
// POST /request-pairing-code
func (s *Server) handleRequestPairingCode(c echo.Context) error {
	var req PairingCodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, StatusResponse{Message: "invalid request body"})
	}
	number := strings.TrimSpace(string(req.Number))
	if number == "" {
		return c.JSON(http.StatusBadRequest, StatusResponse{Message: "number is required"})
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	code, err := s.service.RequestPairingCode(ctx, number)
	if err != nil {
		log.Printf("WARN: pairing code request failed: %v", err)
		return c.JSON(http.StatusInternalServerError, StatusResponse{
			Status:   false,
			Message:  "Failed",
			Response: err.Error(),
		})
	}

	return c.JSON(http.StatusOK, StatusResponse{
		Status:   true,
		Message:  "Success",
		Response: code,
	})
}

// handleLogout removes the session and logs the client out. It always
// answers 200; logout failures are only logged.
// GET /logout
func (s *Server) handleLogout(c echo.Context) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.service.Logout(ctx); err != nil {
		log.Printf("WARN: logout failed: %v", err)
	}
	return c.JSON(http.StatusOK, StatusResponse{Status: true})
}
