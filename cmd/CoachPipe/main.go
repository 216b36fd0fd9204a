package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/BTreeMap/CoachPipe/internal/analytics"
	"github.com/BTreeMap/CoachPipe/internal/api"
	"github.com/BTreeMap/CoachPipe/internal/conversation"
	"github.com/BTreeMap/CoachPipe/internal/engagement"
	"github.com/BTreeMap/CoachPipe/internal/genai"
	"github.com/BTreeMap/CoachPipe/internal/lockfile"
	"github.com/BTreeMap/CoachPipe/internal/notify"
	"github.com/BTreeMap/CoachPipe/internal/persona"
	"github.com/BTreeMap/CoachPipe/internal/scheduler"
	"github.com/BTreeMap/CoachPipe/internal/store"
	"github.com/BTreeMap/CoachPipe/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CoachPipe state data
	DefaultStateDir = "/var/lib/coachpipe"
	// DefaultAppDBFileName is the default SQLite database filename for application data
	DefaultAppDBFileName = "coachpipe.db"
	// DefaultWhatsAppDBFileName is the default SQLite database filename for the WhatsApp session
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Hold an exclusive lock on the state directory so two instances never
	// share the same databases.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping CoachPipe with configured modules")
	if err := run(ctx, flags); err != nil {
		slog.Error("CoachPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("CoachPipe exited successfully")
}

// run wires the storage, language model, notification and engagement modules
// together and serves the API until the context is cancelled.
func run(ctx context.Context, flags Flags) error {
	st, err := store.NewStore(*flags.dbDSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	genaiClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to create language model client: %w", err)
	}

	notifier, stopNotifier, err := buildNotifier(flags)
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}
	if stopNotifier != nil {
		defer stopNotifier()
	}

	recorder := analytics.NewSlogRecorder()
	defer recorder.Stop()

	graph := conversation.DefaultOnboardingGraph()
	personaSvc := persona.NewService(st, genaiClient, graph)
	policy := engagement.NewPolicy(st, genaiClient, notifier)

	if notifier != nil {
		sched := scheduler.NewScheduler()
		defer sched.Stop()
		scanner := engagement.NewScanner(policy, st, sched)
		if err := scanner.Start(*flags.scanCron); err != nil {
			return fmt.Errorf("failed to start engagement scanner: %w", err)
		}
	} else {
		slog.Warn("No notifier configured, re-engagement nudges are disabled")
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(st, graph, personaSvc, policy, recorder, apiOpts...)
	return server.Run(ctx)
}

// buildNotifier constructs the outbound messaging backend selected by the
// notifier flag. The cleanup func is nil unless the backend holds a connection.
func buildNotifier(flags Flags) (notify.Notifier, func(), error) {
	switch *flags.notifier {
	case "twilio":
		n, err := notify.NewTwilioNotifier()
		if err != nil {
			return nil, nil, err
		}
		return n, nil, nil
	case "whatsapp":
		waOpts := []notify.WhatsAppOption{notify.WithWhatsAppDBDSN(*flags.whatsappDSN)}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, notify.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, notify.WithNumericCode())
		}
		n, err := notify.NewWhatsAppNotifier(waOpts...)
		if err != nil {
			return nil, nil, err
		}
		return n, n.Disconnect, nil
	case "", "none":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown notifier backend %q", *flags.notifier)
	}
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	ApplicationDBDSN string
	WhatsAppDBDSN    string
	OpenAIKey        string
	APIAddr          string
	ScanCron         string
	Notifier         string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput    *string
	numeric     *bool
	stateDir    *string
	dbDSN       *string
	whatsappDSN *string
	openaiKey   *string
	apiAddr     *string
	scanCron    *string
	notifier    *string
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
		StateDir:         os.Getenv("COACHPIPE_STATE_DIR"),
		ApplicationDBDSN: os.Getenv("DATABASE_DSN"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		APIAddr:          os.Getenv("API_ADDR"),
		ScanCron:         os.Getenv("ENGAGEMENT_SCAN_SCHEDULE"),
		Notifier:         os.Getenv("NOTIFIER"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No COACHPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Legacy fallback for deployments still setting DATABASE_URL
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = os.Getenv("DATABASE_URL")
	}
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = filepath.Join(config.StateDir, DefaultAppDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.ApplicationDBDSN)
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}

	slog.Debug("environment variables loaded",
		"COACHPIPE_STATE_DIR", config.StateDir,
		"DATABASE_DSN_SET", config.ApplicationDBDSN != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDBDSN != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"ENGAGEMENT_SCAN_SCHEDULE", config.ScanCron,
		"NOTIFIER", config.Notifier)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:    flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:     flag.Bool("numeric-code", util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false), "use numeric WhatsApp login code instead of QR code"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for CoachPipe data (overrides $COACHPIPE_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.ApplicationDBDSN, "application database DSN (overrides $DATABASE_DSN)"),
		whatsappDSN: flag.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "WhatsApp session database DSN (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		scanCron:    flag.String("scan-cron", config.ScanCron, "cron schedule for the lapsed-user scan (overrides $ENGAGEMENT_SCAN_SCHEDULE)"),
		notifier:    flag.String("notifier", config.Notifier, "notification backend: twilio, whatsapp or none (overrides $NOTIFIER)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"scanCron", *flags.scanCron,
		"notifier", *flags.notifier)

	// Follow a state-dir override when the DSN still points at the old default
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultAppDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
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
