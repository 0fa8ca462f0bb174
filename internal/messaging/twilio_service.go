package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gymbrocolombia/gymbot/internal/models"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOpts holds configuration options for the Twilio transport.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string // WhatsApp number in "whatsapp:+1234567890" format
}

// TwilioOption defines a configuration option for the Twilio transport.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number.
func WithFromWhats(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromWhats = from }
}

// TwilioService implements Service using the Twilio REST API. Inbound
// messages arrive through the webhook handler instead of a socket, and media
// is sent as a public URL rather than an upload.
type TwilioService struct {
	client    *twilio.RestClient
	fromWhats string

	responses chan models.Response
	connEvts  chan models.ConnectionEvent
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
}

// NewTwilioService creates a TwilioService. Credentials fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER environment
// variables when not set through options.
func NewTwilioService(opts ...TwilioOption) (*TwilioService, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio service config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioService{
		client:    client,
		fromWhats: cfg.FromWhats,
		responses: make(chan models.Response, DefaultChannelBufferSize),
		connEvts:  make(chan models.ConnectionEvent, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}, nil
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number to bare digits with country code.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient(recipient)
}

// Start emits a synthetic connected event. Twilio is stateless over REST, so
// there is no socket lifecycle to watch.
func (s *TwilioService) Start(ctx context.Context) error {
	s.emitConnectionEvent(models.ConnectionEvent{Kind: models.ConnectionEventConnected, Time: time.Now()})
	return nil
}

// Stop closes channels and stops the service.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.responses)
		close(s.connEvts)
	}()

	return nil
}

// SendMessage sends a text message via the Twilio API.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if body == "" {
		return models.ErrEmptyBody
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + canonicalTo)
	params.SetFrom(s.fromWhats)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioService SendMessage failed", "to", canonicalTo, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", canonicalTo, err)
	}

	slog.Debug("TwilioService message sent", "to", canonicalTo)
	return nil
}

// SendMedia sends an image with a caption. The path must be a URL Twilio can
// fetch; local asset paths are passed through unchanged and will fail
// delivery unless they are already public.
func (s *TwilioService) SendMedia(ctx context.Context, to string, path string, caption string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMedia validation error", "error", err, "to", to)
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + canonicalTo)
	params.SetFrom(s.fromWhats)
	params.SetBody(caption)
	params.SetMediaUrl([]string{path})

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioService SendMedia failed", "to", canonicalTo, "error", err)
		return fmt.Errorf("failed to send media to %s: %w", canonicalTo, err)
	}

	slog.Debug("TwilioService media sent", "to", canonicalTo, "media", path)
	return nil
}

// Responses returns the channel for incoming messages.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

// Events returns the channel of connection lifecycle events.
func (s *TwilioService) Events() <-chan models.ConnectionEvent {
	return s.connEvts
}

// WebhookHandler handles inbound Twilio webhook requests. It parses incoming
// messages and emits them into the Responses channel.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	slog.Info("Twilio webhook received")

	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("Twilio webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	s.safeEmitResponse(models.Response{
		From: from,
		Body: body,
		Time: time.Now().Unix(),
	})

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *TwilioService) safeEmitResponse(response models.Response) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("TwilioService dropping inbound response (service stopped)", "from", response.From)
		return
	}

	select {
	case s.responses <- response:
		slog.Debug("TwilioService emitted inbound response", "from", response.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService responses channel blocked, dropping message", "from", response.From)
	}
}

func (s *TwilioService) emitConnectionEvent(evt models.ConnectionEvent) {
	select {
	case s.connEvts <- evt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService events channel blocked, dropping event", "kind", evt.Kind)
	}
}
