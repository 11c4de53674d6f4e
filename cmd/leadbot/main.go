package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/urman-dev/leadbot/internal/flow"
	"github.com/urman-dev/leadbot/internal/genai"
	"github.com/urman-dev/leadbot/internal/knowledge"
	"github.com/urman-dev/leadbot/internal/messaging"
	"github.com/urman-dev/leadbot/internal/store"
	"github.com/urman-dev/leadbot/internal/tracker"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for leadbot state data
	DefaultStateDir = "/var/lib/leadbot"
	// DefaultDBFileName is the default SQLite knowledge database filename
	DefaultDBFileName = "leadbot.db"
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

	slog.Info("Bootstrapping leadbot with configured modules")
	if err := run(flags); err != nil {
		slog.Error("leadbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("leadbot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	StateDir      string
	OpenAIKey     string
	TelegramToken string
	TrackerURL    string
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	openaiKey     *string
	telegramToken *string
	trackerURL    *string
	historyWindow *int
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
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("LEADBOT_STATE_DIR"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TrackerURL:    os.Getenv("TRACKER_WEBHOOK_URL"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No LEADBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"LEADBOT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"TELEGRAM_BOT_TOKEN_SET", config.TelegramToken != "",
		"TRACKER_WEBHOOK_URL_SET", config.TrackerURL != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for leadbot data (overrides $LEADBOT_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "knowledge database DSN (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		telegramToken: flag.String("telegram-token", config.TelegramToken, "Telegram bot token (overrides $TELEGRAM_BOT_TOKEN)"),
		trackerURL:    flag.String("tracker-url", config.TrackerURL, "task tracker webhook URL (overrides $TRACKER_WEBHOOK_URL)"),
		historyWindow: flag.Int("history-window", flow.DefaultGenerationWindow, "number of recent turns replayed to the model"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"telegramTokenSet", *flags.telegramToken != "",
		"trackerURLSet", *flags.trackerURL != "",
		"historyWindow", *flags.historyWindow)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if knowledge.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// run wires all modules together and processes messages until a shutdown
// signal arrives.
func run(flags Flags) error {
	genAI, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		return err
	}

	index, err := openKnowledgeIndex(genAI, flags)
	if err != nil {
		return err
	}
	defer index.Close()

	conversations := store.NewInMemoryStore()
	responder := flow.NewResponder(genAI, index, flow.WithHistoryWindow(*flags.historyWindow))
	handOff := buildHandOff(flags)
	conversationFlow := flow.NewConversationFlow(conversations, responder, handOff)

	service, err := messaging.NewTelegramService(buildTelegramOptions(flags)...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := service.Start(ctx); err != nil {
		return err
	}
	slog.Info("leadbot running, waiting for messages")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutdown signal received, stopping transport")
			return service.Stop()
		case response, ok := <-service.Responses():
			if !ok {
				slog.Info("Responses channel closed, shutting down")
				return nil
			}
			go handleMessage(ctx, conversationFlow, service, response.From, response.Body)
		}
	}
}

// handleMessage processes one inbound message. Per-user ordering is enforced
// by the store, so concurrent handlers are safe.
func handleMessage(ctx context.Context, conversationFlow *flow.ConversationFlow, service messaging.Service, from, body string) {
	reply, err := conversationFlow.ProcessMessage(ctx, from, body)
	if err != nil {
		slog.Error("Message processing failed", "error", err, "from", from)
		return
	}
	if reply == "" {
		return
	}
	if err := service.SendMessage(ctx, from, reply); err != nil {
		slog.Error("Failed to send reply", "error", err, "from", from)
	}
}

// openKnowledgeIndex selects the index backend by DSN shape.
func openKnowledgeIndex(embedder knowledge.Embedder, flags Flags) (knowledge.Index, error) {
	if knowledge.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL knowledge index")
		return knowledge.NewPostgresIndex(embedder, knowledge.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite knowledge index", "db_path", *flags.dbDSN)
	return knowledge.NewSQLiteIndex(embedder, knowledge.WithDSN(*flags.dbDSN))
}

// buildHandOff wires the tracker client and the optional Twilio manager
// alert. Both are optional: without a tracker URL the hand-off only logs.
func buildHandOff(flags Flags) *flow.HandOff {
	var trackerClient tracker.Client
	if *flags.trackerURL != "" {
		client, err := tracker.NewHTTPClient(tracker.WithBaseURL(*flags.trackerURL))
		if err != nil {
			slog.Warn("Tracker client unavailable, hand-offs will only be logged", "error", err)
		} else {
			trackerClient = client
		}
	} else {
		slog.Warn("No tracker webhook URL configured, hand-offs will only be logged")
	}

	notifier, err := messaging.NewTwilioNotifier()
	if err != nil {
		slog.Debug("Twilio lead alerts disabled", "reason", err)
		return flow.NewHandOff(trackerClient)
	}
	return flow.NewHandOffWithNotifier(trackerClient, notifier)
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildTelegramOptions constructs Telegram transport configuration options
func buildTelegramOptions(flags Flags) []messaging.TelegramOption {
	var tgOpts []messaging.TelegramOption
	if *flags.telegramToken != "" {
		tgOpts = append(tgOpts, messaging.WithToken(*flags.telegramToken))
	}
	return tgOpts
}
