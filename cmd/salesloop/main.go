package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/salesloop/salesloop/internal/api"
	"github.com/salesloop/salesloop/internal/channel"
	"github.com/salesloop/salesloop/internal/classify"
	"github.com/salesloop/salesloop/internal/compliance"
	"github.com/salesloop/salesloop/internal/engine"
	"github.com/salesloop/salesloop/internal/feedback"
	"github.com/salesloop/salesloop/internal/lockfile"
	"github.com/salesloop/salesloop/internal/models"
	"github.com/salesloop/salesloop/internal/scheduler"
	"github.com/salesloop/salesloop/internal/stats"
	"github.com/salesloop/salesloop/internal/store"
	"github.com/salesloop/salesloop/internal/twiliowhatsapp"
	"github.com/salesloop/salesloop/internal/util"
	"github.com/salesloop/salesloop/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Salesloop state data
	DefaultStateDir = "/var/lib/salesloop"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "salesloop.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(config, flags); err != nil {
		slog.Error("Salesloop failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Salesloop exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL      string
	StateDir         string
	APIAddr          string
	OpenAIKey        string
	WhatsAppBackend  string
	WhatsAppDSN      string
	SMTP             channel.SMTPConfig
	Compliance       models.ComplianceConfig
	TickSeconds      int
	Workers          int
	RetryBackoffMins int
}

// Flags holds command line flag values
type Flags struct {
	stateDir  *string
	dbDSN     *string
	apiAddr   *string
	openaiKey *string
	qrOutput  *string
	numeric   *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("SALESLOOP_STATE_DIR"),
		APIAddr:         os.Getenv("API_ADDR"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		WhatsAppBackend: os.Getenv("WHATSAPP_BACKEND"),
		WhatsAppDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		SMTP: channel.SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     util.ParseIntEnv("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
		Compliance: models.ComplianceConfig{
			Enabled:                   util.ParseBoolEnv("SALESLOOP_COMPLIANCE_ENABLED", true),
			MaxEmailsPerHourPerDomain: util.ParseIntEnv("SALESLOOP_MAX_EMAILS_PER_HOUR_PER_DOMAIN", 10),
			MaxEmailsPerDay:           util.ParseIntEnv("SALESLOOP_MAX_EMAILS_PER_DAY", 500),
			SoftBounceRetryCount:      util.ParseIntEnv("SALESLOOP_SOFT_BOUNCE_RETRIES", 3),
		},
		TickSeconds:      util.ParseIntEnv("SALESLOOP_TICK_SECONDS", 30),
		Workers:          util.ParseIntEnv("SALESLOOP_WORKERS", 4),
		RetryBackoffMins: util.ParseIntEnv("SALESLOOP_RETRY_BACKOFF_MINUTES", 60),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SALESLOOP_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SALESLOOP_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"WHATSAPP_BACKEND", config.WhatsAppBackend,
		"SMTP_HOST_SET", config.SMTP.Host != "",
		"compliance_enabled", config.Compliance.Enabled)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for Salesloop data (overrides $SALESLOOP_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN, SQLite path or PostgreSQL URL (overrides $DATABASE_URL)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for reply classification (overrides $OPENAI_API_KEY)"),
		qrOutput:  flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:   flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
	}
	flag.Parse()

	// Follow the state directory when the DSN was only defaulted from it.
	if *flags.dbDSN == config.DatabaseURL &&
		config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) &&
		*flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"openaiKeySet", *flags.openaiKey != "")

	return flags
}

func run(config Config, flags Flags) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	guard := compliance.NewGuard(config.Compliance, st)

	waSender, waCleanup, err := buildWhatsAppSender(config, flags)
	if err != nil {
		return err
	}
	if waCleanup != nil {
		defer waCleanup()
	}

	registry := channel.NewRegistry(
		channel.NewEmailAdapter(config.SMTP),
		channel.NewWhatsAppAdapter(waSender),
		channel.NewTaskAdapter(models.ChannelCall, st),
		channel.NewTaskAdapter(models.ChannelTask, st),
		channel.NewTaskAdapter(models.ChannelLinkedInManual, st),
	)

	eng := engine.New(st, guard, registry,
		engine.WithTickInterval(time.Duration(config.TickSeconds)*time.Second),
		engine.WithWorkers(config.Workers),
		engine.WithRetryBackoffBase(time.Duration(config.RetryBackoffMins)*time.Minute),
	)

	processor := feedback.NewProcessor(st)

	sched := scheduler.NewScheduler()
	if err := scheduler.RegisterMaintenance(sched, guard, st, engine.DefaultStaleThreshold); err != nil {
		return err
	}
	defer sched.Stop()

	apiOpts := buildAPIOptions(flags)
	server := api.NewServer(st, eng, stats.NewAggregator(st), apiOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping Salesloop",
		"state_dir", *flags.stateDir,
		"dsn_type", store.DetectDSNType(*flags.dbDSN),
		"whatsapp_backend", config.WhatsAppBackend,
		"email_simulated", config.SMTP.Host == "")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return processor.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })
	return g.Wait()
}

// openStore selects the persistent backend from the DSN shape.
func openStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildWhatsAppSender picks the WhatsApp backend from $WHATSAPP_BACKEND:
// "whatsmeow" for a direct session, "twilio" for the Twilio Business API,
// anything else runs the whatsapp channel simulated.
func buildWhatsAppSender(config Config, flags Flags) (whatsapp.Sender, func(), error) {
	switch config.WhatsAppBackend {
	case "whatsmeow":
		var waOpts []whatsapp.Option
		if config.WhatsAppDSN != "" {
			waOpts = append(waOpts, whatsapp.WithDBDSN(config.WhatsAppDSN))
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Disconnect, nil
	case "twilio":
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	default:
		slog.Info("No WhatsApp backend configured, whatsapp channel runs simulated")
		return nil, nil, nil
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.openaiKey != "" {
		classifier, err := classify.NewClassifier(classify.WithAPIKey(*flags.openaiKey))
		if err != nil {
			slog.Warn("Failed to configure reply classifier, continuing without", "error", err)
		} else {
			apiOpts = append(apiOpts, api.WithClassifier(classifier))
		}
	}
	return apiOpts
}
