// Package messaging provides the message delivery abstraction for GymBot.
//
// A Service hides the concrete transport (Whatsmeow or Twilio) behind send
// methods plus channels for inbound responses and connection lifecycle
// events. The response handler consumes those channels and drives the
// conversation engine.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/gymbrocolombia/gymbot/internal/models"
)

// ErrServiceStopped is returned by send methods after Stop.
var ErrServiceStopped = errors.New("messaging service is stopped")

// phoneNumberRegex strips everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. Returns the canonicalized recipient and an error if
	// validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// SendMedia sends the image at path with a caption.
	SendMedia(ctx context.Context, to string, path string, caption string) error

	// Start begins any background processing (e.g., event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of incoming user responses.
	Responses() <-chan models.Response

	// Events returns a channel of connection lifecycle events.
	Events() <-chan models.ConnectionEvent
}

// canonicalizeRecipient removes all non-numeric characters and validates the
// result has at least 6 digits. Both services share these rules.
func canonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("%w: no digits found in %q", models.ErrInvalidRecipient, recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("%w: %q is too short (minimum 6 digits required)", models.ErrInvalidRecipient, canonical)
	}

	if recipient != canonical {
		slog.Debug("canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
