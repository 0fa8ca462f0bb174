package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gymbrocolombia/gymbot/internal/api"
	"github.com/gymbrocolombia/gymbot/internal/lifecycle"
	"github.com/gymbrocolombia/gymbot/internal/lockfile"
	"github.com/gymbrocolombia/gymbot/internal/logbuf"
	"github.com/gymbrocolombia/gymbot/internal/store"
	"github.com/gymbrocolombia/gymbot/internal/util"
	"github.com/gymbrocolombia/gymbot/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for GymBot state data
	DefaultStateDir = "/var/lib/gymbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "gymbot.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow session database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	logRing := initializeLogger()

	config := loadEnvironmentConfig()

	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// One instance per state directory; the session database cannot be shared.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	waOpts := buildWhatsAppOptions(flags)
	storeOpts := buildStoreOptions(flags)
	apiOpts := buildAPIOptions(flags, config, logRing)

	slog.Info("Bootstrapping GymBot with configured modules")
	slog.Debug("Module options counts", "whatsapp", len(waOpts), "store", len(storeOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := api.Run(waOpts, storeOpts, apiOpts); err != nil {
		slog.Error("GymBot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("GymBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL       string
	WhatsAppDSN       string
	StateDir          string
	APIAddr           string
	WebhookURL        string
	QRAssetJulio      string
	QRAssetVenecia    string
	UseTwilio         bool
	InactivityTimeout time.Duration
	MemoryLimitMB     int
}

// Flags holds command line flag values
type Flags struct {
	qrOutput *string
	numeric  *bool
	stateDir *string
	dbDSN    *string
	waDSN    *string
	apiAddr  *string
	config   Config
}

// initializeLogger sets up structured logging with the dashboard log ring.
func initializeLogger() *logbuf.Handler {
	inner := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	ring := logbuf.NewHandler(inner, logbuf.DefaultCapacity)
	slog.SetDefault(slog.New(ring))
	return ring
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		WhatsAppDSN:       os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:          os.Getenv("GYMBOT_STATE_DIR"),
		APIAddr:           os.Getenv("API_ADDR"),
		WebhookURL:        os.Getenv("WEBHOOK_URL"),
		QRAssetJulio:      os.Getenv("QR_ASSET_JULIO"),
		QRAssetVenecia:    os.Getenv("QR_ASSET_VENECIA"),
		UseTwilio:         util.ParseBoolEnv("USE_TWILIO", false),
		InactivityTimeout: util.ParseDurationEnv("INACTIVITY_TIMEOUT", lifecycle.DefaultInactivityTimeout),
		MemoryLimitMB:     util.ParseIntEnv("MEMORY_LIMIT_MB", 1024),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No GYMBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Default to SQLite files in the state directory when no DSNs are given.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
		slog.Debug("No WhatsApp DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"GYMBOT_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"WEBHOOK_URL_SET", config.WebhookURL != "",
		"USE_TWILIO", config.UseTwilio,
		"INACTIVITY_TIMEOUT", config.InactivityTimeout)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput: flag.String("qr-output", "", "path to write login QR code"),
		numeric:  flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir: flag.String("state-dir", config.StateDir, "state directory for GymBot data (overrides $GYMBOT_STATE_DIR)"),
		dbDSN:    flag.String("db-dsn", config.DatabaseURL, "database DSN for the interaction store (overrides $DATABASE_URL)"),
		waDSN:    flag.String("wa-db-dsn", config.WhatsAppDSN, "database DSN for the WhatsApp session (overrides $WHATSAPP_DB_DSN)"),
		apiAddr:  flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		config:   config,
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"waDSN_set", *flags.waDSN != "",
		"apiAddr", *flags.apiAddr)

	// Follow a changed state directory for default SQLite paths.
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		}
		if *flags.waDSN == filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) {
			*flags.waDSN = filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName)
		}
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	for _, dsn := range []string{*flags.dbDSN, *flags.waDSN} {
		if strings.Contains(dsn, "postgres://") || strings.Contains(dsn, "host=") {
			continue
		}
		dir := filepath.Dir(dsn)
		slog.Debug("Creating directory for file-based database", "dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.waDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
	}
	return waOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, config Config, logRing *logbuf.Handler) []api.Option {
	apiOpts := []api.Option{
		api.WithLogBuffer(logRing),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if config.WebhookURL != "" {
		apiOpts = append(apiOpts, api.WithAlertWebhook(config.WebhookURL))
	}
	if config.QRAssetJulio != "" || config.QRAssetVenecia != "" {
		apiOpts = append(apiOpts, api.WithQRAssets(config.QRAssetJulio, config.QRAssetVenecia))
	}
	if config.UseTwilio {
		apiOpts = append(apiOpts, api.WithTwilioTransport())
	}

	var lcOpts []lifecycle.ManagerOption
	if config.InactivityTimeout > 0 {
		lcOpts = append(lcOpts, lifecycle.WithInactivityTimeout(config.InactivityTimeout))
	}
	if config.MemoryLimitMB > 0 {
		lcOpts = append(lcOpts, lifecycle.WithMemoryLimit(uint64(config.MemoryLimitMB)<<20))
	}
	if len(lcOpts) > 0 {
		apiOpts = append(apiOpts, api.WithLifecycleOptions(lcOpts...))
	}

	return apiOpts
}
