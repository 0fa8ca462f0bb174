// Package whatsapp wraps the Whatsmeow client for WhatsApp integration in GymBot.
//
// It provides methods for sending text and image messages, exposes the
// latest login QR code for the dashboard, and handles connection lifecycle.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gymbrocolombia/gymbot/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is the default path for the whatsmeow SQLite database
	DefaultSQLitePath = "/var/lib/gymbot/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = "s.whatsapp.net"
)

// Sender is the interface for sending WhatsApp messages (production and testing).
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendImage(ctx context.Context, to string, path string, caption string) error
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // use numeric login code instead of QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput instructs the client to write the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode instructs the client to use numeric login code instead of QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client wraps the Whatsmeow client for modular use.
type Client struct {
	waClient *whatsmeow.Client
	cfg      Opts

	mu       sync.Mutex
	latestQR string
}

// NewClient creates a new WhatsApp client, applying any provided options.
// It initializes the whatsmeow device store but does not connect; call
// Connect to log in and start the session.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	// Auto-detect database driver based on DSN
	var dbDriver string
	if store.DetectDSNType(dbDSN) == "postgres" {
		dbDriver = "postgres"
		slog.Debug("WhatsApp client auto-detected PostgreSQL driver", "dsn_type", "postgresql")
	} else {
		dbDriver = "sqlite3"
		slog.Debug("WhatsApp client auto-detected SQLite driver", "dsn_type", "sqlite")

		// whatsmeow strongly recommends foreign keys on SQLite
		if !strings.Contains(dbDSN, "_foreign_keys") && !strings.Contains(dbDSN, "foreign_keys") {
			slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
				"Consider adding '?_foreign_keys=on' to your connection string.",
				"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
		}
	}

	slog.Debug("WhatsApp NewClient initializing DB store", "driver", dbDriver, "dsn_set", dbDSN != "")
	logger := waLog.Stdout("Database", "INFO", true)
	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, logger)
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	clientLog := waLog.Stdout("Client", "INFO", true)
	waClient := whatsmeow.NewClient(deviceStore, clientLog)

	return &Client{waClient: waClient, cfg: cfg}, nil
}

// Connect logs in and connects to the WhatsApp servers. When no session is
// stored yet it starts the QR login flow: codes are rendered to the
// configured output and kept available through LatestQR until the pairing
// completes.
func (c *Client) Connect(ctx context.Context) error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}

	if c.waClient.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow")
		qrChan, _ := c.waClient.GetQRChannel(ctx)
		if err := c.waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp during login", "error", err)
			return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		go c.consumeQRChannel(qrChan)
		return nil
	}

	slog.Debug("WhatsApp already logged in, connecting to server")
	if err := c.waClient.Connect(); err != nil {
		slog.Error("Failed to connect to WhatsApp server", "error", err)
		return fmt.Errorf("failed to connect to WhatsApp server: %w", err)
	}
	slog.Info("WhatsApp client connected successfully")
	return nil
}

// consumeQRChannel renders each login code and keeps the latest one
// available for the dashboard until pairing succeeds or times out.
func (c *Client) consumeQRChannel(qrChan <-chan whatsmeow.QRChannelItem) {
	writer := io.Writer(os.Stdout)
	if c.cfg.QRPath != "" {
		f, ferr := os.Create(c.cfg.QRPath)
		if ferr != nil {
			slog.Error("Failed to create QR file, falling back to stdout", "error", ferr)
		} else {
			defer f.Close()
			writer = f
		}
	}
	for evt := range qrChan {
		if evt.Event == "code" {
			slog.Debug("WhatsApp login code received")
			c.mu.Lock()
			c.latestQR = evt.Code
			c.mu.Unlock()
			if c.cfg.NumericCode {
				fmt.Fprintln(writer, evt.Code)
			} else {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
			}
		} else {
			slog.Info("WhatsApp login event", "event", evt.Event)
			c.mu.Lock()
			c.latestQR = ""
			c.mu.Unlock()
		}
	}
}

// LatestQR returns the most recent pending login code, or empty when the
// session is already paired.
func (c *Client) LatestQR() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latestQR
}

// Disconnect tears down the server connection. The stored session survives,
// so a later Connect resumes without a new QR scan.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

// IsConnected reports whether the underlying client holds a live connection.
func (c *Client) IsConnected() bool {
	return c.waClient != nil && c.waClient.IsConnected()
}

// IsLoggedIn reports whether the device is paired and authenticated.
func (c *Client) IsLoggedIn() bool {
	return c.waClient != nil && c.waClient.IsLoggedIn()
}

// SendMessage sends a WhatsApp text message to the specified recipient.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if c.waClient.Store == nil {
		return fmt.Errorf("whatsapp client store not available")
	}
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}

	slog.Debug("Sending WhatsApp message", "to", to, "body_length", len(body))
	jid := types.NewJID(to, JIDSuffix)
	msg := &waE2E.Message{Conversation: &body}

	_, err := c.waClient.SendMessage(ctx, jid, msg)
	if err != nil {
		slog.Error("Failed to send WhatsApp message", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}

	slog.Debug("WhatsApp message sent successfully", "to", to)
	return nil
}

// SendImage uploads the image at path and sends it with the given caption.
func (c *Client) SendImage(ctx context.Context, to string, path string, caption string) error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read image file", "error", err, "path", path)
		return fmt.Errorf("failed to read image %s: %w", path, err)
	}

	resp, err := c.waClient.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		slog.Error("Failed to upload image", "error", err, "path", path)
		return fmt.Errorf("failed to upload image %s: %w", path, err)
	}

	jid := types.NewJID(to, JIDSuffix)
	msg := &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(imageMimeType(path)),
			URL:           &resp.URL,
			DirectPath:    &resp.DirectPath,
			MediaKey:      resp.MediaKey,
			FileEncSHA256: resp.FileEncSHA256,
			FileSHA256:    resp.FileSHA256,
			FileLength:    &resp.FileLength,
		},
	}

	if _, err := c.waClient.SendMessage(ctx, jid, msg); err != nil {
		slog.Error("Failed to send WhatsApp image", "error", err, "to", to)
		return fmt.Errorf("failed to send image to %s: %w", to, err)
	}

	slog.Debug("WhatsApp image sent successfully", "to", to, "path", path)
	return nil
}

func imageMimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// GetClient returns the underlying whatsmeow client for event handler registration.
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// SentText records one text message captured by MockClient.
type SentText struct {
	To   string
	Body string
}

// SentImage records one image message captured by MockClient.
type SentImage struct {
	To      string
	Path    string
	Caption string
}

// MockClient implements Sender without touching WhatsApp, recording every
// send for assertions. Use NewMockClient in tests instead of NewClient.
type MockClient struct {
	mu     sync.Mutex
	Texts  []SentText
	Images []SentImage
	Err    error
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Texts = append(m.Texts, SentText{To: to, Body: body})
	return nil
}

func (m *MockClient) SendImage(ctx context.Context, to string, path string, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Images = append(m.Images, SentImage{To: to, Path: path, Caption: caption})
	return nil
}
