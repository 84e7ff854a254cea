// Package sms delivers debt reminder messages through an HTTP gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ttacon/libphonenumber"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// Sender delivers one message to one phone number. The phone must already be
// in E.164 form.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// NormalizePhone parses a raw phone string and returns it in E.164 form.
// defaultRegion is the ISO 3166-1 alpha-2 code applied when the number has no
// country prefix.
func NormalizePhone(raw, defaultRegion string) (string, error) {
	parsed, err := libphonenumber.Parse(raw, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPhone, err)
	}
	if !libphonenumber.IsValidNumber(parsed) {
		return "", ErrInvalidPhone
	}
	return libphonenumber.Format(parsed, libphonenumber.E164), nil
}

// GatewaySender posts messages to an Eskiz-style HTTP SMS gateway.
type GatewaySender struct {
	url      string
	token    string
	senderID string
	client   *http.Client
}

func NewGatewaySender(url, token, senderID string) *GatewaySender {
	return &GatewaySender{
		url:      url,
		token:    token,
		senderID: senderID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *GatewaySender) Send(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(map[string]string{
		"mobile_phone": phone,
		"message":      message,
		"from":         s.senderID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// LogSender writes messages to the process log instead of a gateway. Used in
// dev/demo mode when no gateway is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, phone, message string) error {
	log.Printf("[sms] to=%s message=%q", phone, message)
	return nil
}
