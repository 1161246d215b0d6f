package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mhealthlab/demobot/internal/capability"
	"github.com/mhealthlab/demobot/internal/flow"
	"github.com/mhealthlab/demobot/internal/genai"
	"github.com/mhealthlab/demobot/internal/messaging"
	"github.com/mhealthlab/demobot/internal/session"
	"github.com/mhealthlab/demobot/internal/store"
	"github.com/mhealthlab/demobot/internal/twilio"
	"github.com/mhealthlab/demobot/internal/util"
	"github.com/mhealthlab/demobot/internal/whatsapp"
	"github.com/openai/openai-go"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for DemoBot state data
	DefaultStateDir = "/var/lib/demobot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "demobot.db"
	// ProviderWhatsApp selects the whatsmeow-based transport.
	ProviderWhatsApp = "whatsapp"
	// ProviderTwilio selects the Twilio WhatsApp Business API transport.
	ProviderTwilio = "twilio"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping DemoBot with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "provider", *flags.provider)
	if err := run(flags); err != nil {
		slog.Error("DemoBot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("DemoBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	WhatsAppDSN string
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	OpenAIModel string
	Provider    string
	PromptFile  string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput   *string
	numeric    *bool
	stateDir   *string
	dbDSN      *string
	openaiKey  *string
	model      *string
	provider   *string
	promptFile *string
}

// initializeLogger sets up structured logging; DEMOBOT_DEBUG enables debug level
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("DEMOBOT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("DEMOBOT_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: os.Getenv("OPENAI_MODEL"),
		Provider:    os.Getenv("MESSAGING_PROVIDER"),
		PromptFile:  os.Getenv("FREEFORM_PROMPT_FILE"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No DEMOBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Default to the shared database URL if no WhatsApp-specific DSN is set
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = config.DatabaseURL
		if config.DatabaseURL != "" {
			slog.Debug("Using DATABASE_URL as WHATSAPP_DB_DSN", "dsn_set", true)
		}
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}

	if config.Provider == "" {
		config.Provider = ProviderWhatsApp
	}

	slog.Debug("environment variables loaded",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"DEMOBOT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"MESSAGING_PROVIDER", config.Provider,
		"FREEFORM_PROMPT_FILE", config.PromptFile)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:   flag.String("qr-output", "", "path to write login QR code"),
		numeric:    flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for DemoBot data (overrides $DEMOBOT_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.WhatsAppDSN, "database DSN for WhatsApp session and transcript archive (overrides $WHATSAPP_DB_DSN or $DATABASE_URL)"),
		openaiKey:  flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		model:      flag.String("model", config.OpenAIModel, "OpenAI model name (overrides $OPENAI_MODEL)"),
		provider:   flag.String("provider", config.Provider, "messaging provider: whatsapp or twilio (overrides $MESSAGING_PROVIDER)"),
		promptFile: flag.String("prompt-file", config.PromptFile, "file containing the freeform system prompt (overrides $FREEFORM_PROMPT_FILE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"model", *flags.model,
		"provider", *flags.provider,
		"promptFile", *flags.promptFile)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.WhatsAppDSN && config.WhatsAppDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
		return err
	}
	return nil
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	archive, err := newArchive(flags)
	if err != nil {
		return err
	}
	defer archive.Close()

	client, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		return err
	}

	svc, err := newMessagingService(flags)
	if err != nil {
		return err
	}

	registry := capability.NewDefaultRegistry()
	sessions := session.NewMemoryStore()
	demo := flow.NewDemoEngine(client)
	freeform := flow.NewFreeformEngine(client)
	if *flags.promptFile != "" {
		if err := freeform.LoadSystemPrompt(*flags.promptFile); err != nil {
			return err
		}
	}

	dispatcher := flow.NewDispatcher(sessions, registry, demo, freeform, svc)
	listener := messaging.NewListener(svc, dispatcher, archive)

	if err := svc.Start(ctx); err != nil {
		return err
	}
	listener.Start(ctx)
	go drainReceipts(svc, archive)

	slog.Info("DemoBot running", "provider", *flags.provider)
	<-ctx.Done()

	slog.Info("Shutting down")
	if err := svc.Stop(); err != nil {
		slog.Warn("Messaging service stop failed", "error", err)
	}
	listener.Wait()
	return nil
}

// newArchive selects the transcript archive backend from the DSN.
func newArchive(flags Flags) (store.Store, error) {
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, using in-memory archive")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL archive")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite archive", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// newMessagingService builds the configured transport. The WhatsApp client
// runs its pairing flow during construction when the device is not yet linked.
func newMessagingService(flags Flags) (messaging.Service, error) {
	switch strings.ToLower(*flags.provider) {
	case ProviderTwilio:
		client, err := twilio.NewClient()
		if err != nil {
			return nil, err
		}
		return messaging.NewTwilioService(client), nil
	default:
		client, err := whatsapp.NewClient(buildWhatsAppOptions(flags)...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client), nil
	}
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
	if *flags.dbDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.dbDSN))
	}
	return waOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(openai.ChatModel(*flags.model)))
	}
	return genaiOpts
}

// drainReceipts archives delivery receipts until the transport closes its
// receipt channel.
func drainReceipts(svc messaging.Service, archive store.Store) {
	for receipt := range svc.Receipts() {
		if receipt.Status == "" {
			continue
		}
		if err := archive.AddReceipt(receipt); err != nil {
			slog.Warn("Failed to archive receipt", "error", err, "to", receipt.To)
		}
		slog.Debug("Receipt archived", "to", receipt.To, "status", receipt.Status)
	}
}
