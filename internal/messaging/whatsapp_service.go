package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gymbrocolombia/gymbot/internal/models"
	"github.com/gymbrocolombia/gymbot/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// Constants for WhatsAppService configuration
const (
	// DefaultChannelBufferSize defines the buffer size for response and event channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client    whatsapp.Sender
	waClient  *whatsapp.Client // underlying client for event handling; nil for mocks
	responses chan models.Response
	connEvts  chan models.ConnectionEvent
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given Sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client:    client,
		responses: make(chan models.Response, DefaultChannelBufferSize),
		connEvts:  make(chan models.ConnectionEvent, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}

	// Only a full Client exposes the whatsmeow event stream; mocks don't.
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number to bare digits with country code.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient(recipient)
}

// Start registers the event handler and connects to WhatsApp.
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")

	if s.waClient == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}

	s.waClient.GetClient().AddEventHandler(s.dispatchEvent)
	slog.Debug("WhatsAppService event handler registered")

	if err := s.waClient.Connect(ctx); err != nil {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.waClient.Disconnect()
		slog.Debug("WhatsAppService disconnected")
	}()

	return nil
}

// Stop stops background processing and closes the channels.
func (s *WhatsAppService) Stop() error {
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

	slog.Info("WhatsAppService stopped")
	return nil
}

// SendMessage sends a text message.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if body == "" {
		return models.ErrEmptyBody
	}

	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", canonicalTo)
		return err
	}
	slog.Debug("WhatsAppService message sent", "to", canonicalTo, "body_length", len(body))
	return nil
}

// SendMedia sends the image at path with a caption.
func (s *WhatsAppService) SendMedia(ctx context.Context, to string, path string, caption string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendMedia validation error", "error", err, "to", to)
		return err
	}

	if err := s.client.SendImage(ctx, canonicalTo, path, caption); err != nil {
		slog.Error("WhatsAppService SendMedia error", "error", err, "to", canonicalTo, "path", path)
		return err
	}
	slog.Debug("WhatsAppService media sent", "to", canonicalTo, "path", path)
	return nil
}

// Responses returns the channel of incoming user responses.
func (s *WhatsAppService) Responses() <-chan models.Response {
	return s.responses
}

// Events returns the channel of connection lifecycle events.
func (s *WhatsAppService) Events() <-chan models.ConnectionEvent {
	return s.connEvts
}

// LatestQR exposes the newest pending pairing code for the dashboard.
func (s *WhatsAppService) LatestQR() string {
	if s.waClient == nil {
		return ""
	}
	return s.waClient.LatestQR()
}

// IsConnected reports whether the transport holds a live connection.
func (s *WhatsAppService) IsConnected() bool {
	return s.waClient != nil && s.waClient.IsConnected()
}

// dispatchEvent maps whatsmeow events to inbound responses and connection
// events.
func (s *WhatsAppService) dispatchEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(v)
	case *events.Connected:
		s.emitConnectionEvent(models.ConnectionEvent{Kind: models.ConnectionEventConnected, Time: time.Now()})
	case *events.Disconnected:
		s.emitConnectionEvent(models.ConnectionEvent{Kind: models.ConnectionEventDisconnected, Time: time.Now()})
	case *events.StreamReplaced:
		s.emitConnectionEvent(models.ConnectionEvent{Kind: models.ConnectionEventStreamReplaced, Reason: "stream replaced by another session", Time: time.Now()})
	case *events.LoggedOut:
		s.emitConnectionEvent(models.ConnectionEvent{Kind: models.ConnectionEventLoggedOut, Reason: "device logged out", Time: time.Now()})
	case *events.KeepAliveTimeout:
		s.emitConnectionEvent(models.ConnectionEvent{Kind: models.ConnectionEventTimeout, Reason: "keepalive timeout", Time: time.Now()})
	case *events.QR:
		if len(v.Codes) > 0 {
			s.emitConnectionEvent(models.ConnectionEvent{Kind: models.ConnectionEventQR, QRCode: v.Codes[0], Time: time.Now()})
		}
	default:
		slog.Debug("WhatsAppService ignoring event", "type", getEventType(v))
	}
}

// handleIncomingMessage processes incoming text messages from users.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}
	// Group chats and our own outbound echoes are not conversations.
	if evt.Info.IsGroup || evt.Info.IsFromMe {
		return
	}

	var messageText string
	if evt.Message.Conversation != nil {
		messageText = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil {
		messageText = *evt.Message.ExtendedTextMessage.Text
	} else {
		// Skip non-text messages (images, audio, etc.)
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	response := models.Response{
		From: evt.Info.Sender.User,
		Body: messageText,
		Time: evt.Info.Timestamp.Unix(),
	}

	slog.Debug("WhatsAppService processing incoming message", "from", response.From, "body_length", len(response.Body))

	select {
	case s.responses <- response:
		slog.Info("WhatsAppService incoming message forwarded", "from", response.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService responses channel blocked, dropping message", "from", response.From, "timeout", DefaultChannelTimeout)
	}
}

// emitConnectionEvent forwards a connection event without blocking.
func (s *WhatsAppService) emitConnectionEvent(evt models.ConnectionEvent) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return
	}

	slog.Debug("WhatsAppService connection event", "kind", evt.Kind, "reason", evt.Reason)
	select {
	case s.connEvts <- evt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService events channel blocked, dropping event", "kind", evt.Kind)
	}
}

// getEventType returns a string representation of the event type for logging.
func getEventType(evt interface{}) string {
	switch evt.(type) {
	case *events.Message:
		return "Message"
	case *events.Receipt:
		return "Receipt"
	case *events.Presence:
		return "Presence"
	default:
		return "Unknown"
	}
}
