// Package api provides the HTTP control surface and the main server logic
// for GymBot.
//
// It exposes the health, stats and admin endpoints the dashboard consumes,
// and Run is the composition root wiring the transport, conversation engine,
// store and lifecycle manager together.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gymbrocolombia/gymbot/internal/alert"
	"github.com/gymbrocolombia/gymbot/internal/flow"
	"github.com/gymbrocolombia/gymbot/internal/lifecycle"
	"github.com/gymbrocolombia/gymbot/internal/logbuf"
	"github.com/gymbrocolombia/gymbot/internal/messaging"
	"github.com/gymbrocolombia/gymbot/internal/models"
	"github.com/gymbrocolombia/gymbot/internal/scheduler"
	"github.com/gymbrocolombia/gymbot/internal/session"
	"github.com/gymbrocolombia/gymbot/internal/store"
	"github.com/gymbrocolombia/gymbot/internal/whatsapp"
)

// DefaultAddr is the default API server listen address.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server and its wiring.
type Opts struct {
	Addr            string
	AlertWebhookURL string
	UseTwilio       bool
	TwilioOpts      []messaging.TwilioOption
	QRAssetJulio    string
	QRAssetVenecia  string
	LifecycleOpts   []lifecycle.ManagerOption
	LogBuffer       *logbuf.Handler
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAlertWebhook sets the webhook URL for operational alerts.
func WithAlertWebhook(url string) Option {
	return func(o *Opts) { o.AlertWebhookURL = url }
}

// WithTwilioTransport switches the transport to Twilio with the given options.
func WithTwilioTransport(opts ...messaging.TwilioOption) Option {
	return func(o *Opts) {
		o.UseTwilio = true
		o.TwilioOpts = opts
	}
}

// WithQRAssets sets the payment QR image paths per site.
func WithQRAssets(julio, venecia string) Option {
	return func(o *Opts) {
		o.QRAssetJulio = julio
		o.QRAssetVenecia = venecia
	}
}

// WithLifecycleOptions forwards extra options to the lifecycle manager.
func WithLifecycleOptions(opts ...lifecycle.ManagerOption) Option {
	return func(o *Opts) { o.LifecycleOpts = append(o.LifecycleOpts, opts...) }
}

// WithLogBuffer exposes the captured log ring through the dashboard.
func WithLogBuffer(h *logbuf.Handler) Option {
	return func(o *Opts) { o.LogBuffer = h }
}

// Server carries the handler dependencies for the control endpoints.
type Server struct {
	msgService messaging.Service
	sessions   *session.Store
	manager    *lifecycle.Manager
	store      store.Store
	logs       *logbuf.Handler
	// qrText returns the pending pairing code, when the transport has one.
	qrText func() string
	exit   func(code int)
}

// NewServer creates a Server over the given collaborators.
func NewServer(msgService messaging.Service, sessions *session.Store, manager *lifecycle.Manager, st store.Store, logs *logbuf.Handler) *Server {
	return &Server{
		msgService: msgService,
		sessions:   sessions,
		manager:    manager,
		store:      st,
		logs:       logs,
		qrText:     func() string { return "" },
		exit:       os.Exit,
	}
}

// Routes registers the control endpoints on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("/admin/api/status", s.statusHandler)
	mux.HandleFunc("/admin/api/restart", s.restartHandler)
	mux.HandleFunc("/admin/api/regenerate-qr", s.regenerateQRHandler)
	mux.HandleFunc("/admin/api/cleanup", s.cleanupHandler)
	mux.HandleFunc("/admin/api/test-message", s.testMessageHandler)
	mux.HandleFunc("/admin/api/logs/download", s.logsDownloadHandler)
	return mux
}

// Run wires all modules together and serves until a termination signal.
func Run(waOpts []whatsapp.Option, storeOpts []store.Option, apiOpts []Option) error {
	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	sessions := session.NewStore()

	engineOpts := []flow.Option{flow.WithActiveSessionCounter(sessions.Len)}
	if cfg.QRAssetJulio != "" {
		engineOpts = append(engineOpts, flow.WithQRAsset(models.LocationJulio, cfg.QRAssetJulio))
	}
	if cfg.QRAssetVenecia != "" {
		engineOpts = append(engineOpts, flow.WithQRAsset(models.LocationVenecia, cfg.QRAssetVenecia))
	}
	engine := flow.NewEngine(engineOpts...)

	notifier := alert.NewNotifier(cfg.AlertWebhookURL)
	sched := scheduler.NewScheduler()
	defer sched.Stop()

	var (
		msgService messaging.Service
		twilioSvc  *messaging.TwilioService
		qrText     func() string
	)
	if cfg.UseTwilio {
		slog.Info("Using Twilio transport")
		twilioSvc, err = messaging.NewTwilioService(cfg.TwilioOpts...)
		if err != nil {
			return fmt.Errorf("failed to initialize Twilio transport: %w", err)
		}
		msgService = twilioSvc
		qrText = func() string { return "" }
	} else {
		slog.Info("Using WhatsApp transport")
		waClient, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return fmt.Errorf("failed to initialize WhatsApp client: %w", err)
		}
		waService := messaging.NewWhatsAppService(waClient)
		msgService = waService
		qrText = waService.LatestQR

		cfg.LifecycleOpts = append(cfg.LifecycleOpts,
			lifecycle.WithConnectFunc(waClient.Connect),
			lifecycle.WithConnectedProbe(waClient.IsConnected),
		)
	}

	manager := lifecycle.NewManager(msgService, msgService.Events(), sessions, st,
		append([]lifecycle.ManagerOption{
			lifecycle.WithAlertNotifier(notifier),
			lifecycle.WithScheduler(sched),
		}, cfg.LifecycleOpts...)...)

	respHandler := messaging.NewResponseHandler(msgService, sessions, engine, st,
		messaging.WithCleanupTrigger(func() { manager.CleanupInactive(context.Background()) }))

	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer msgService.Stop()

	respHandler.Start(ctx)
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	server := NewServer(msgService, sessions, manager, st, cfg.LogBuffer)
	server.qrText = qrText

	mux := server.Routes()
	if twilioSvc != nil {
		mux.HandleFunc("/webhook/twilio", twilioSvc.WebhookHandler)
	}

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("GymBot API running", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	return nil
}
