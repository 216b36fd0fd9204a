package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/BTreeMap/CoachPipe/internal/store"
)

const (
	// DefaultWhatsAppDBPath is the default whatsmeow session database location.
	DefaultWhatsAppDBPath = "/var/lib/coachpipe/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users.
	JIDSuffix = "s.whatsapp.net"
)

// WhatsAppOpts holds configuration for the WhatsApp nudge channel.
type WhatsAppOpts struct {
	DBDSN       string // whatsmeow session database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // use numeric login code instead of QR code
}

// WhatsAppOption configures the WhatsApp nudge channel.
type WhatsAppOption func(*WhatsAppOpts)

// WithWhatsAppDBDSN sets the whatsmeow session database connection string.
func WithWhatsAppDBDSN(dsn string) WhatsAppOption {
	return func(o *WhatsAppOpts) { o.DBDSN = dsn }
}

// WithQRCodeOutput writes the login QR code to the given path instead of stdout.
func WithQRCodeOutput(path string) WhatsAppOption {
	return func(o *WhatsAppOpts) { o.QRPath = path }
}

// WithNumericCode prints a numeric login code instead of a QR code.
func WithNumericCode() WhatsAppOption {
	return func(o *WhatsAppOpts) { o.NumericCode = true }
}

// WhatsAppNotifier delivers nudges over WhatsApp via whatsmeow.
type WhatsAppNotifier struct {
	waClient *whatsmeow.Client
}

// NewWhatsAppNotifier connects a WhatsApp session, running the login flow if
// the session database has no registered device yet.
func NewWhatsAppNotifier(opts ...WhatsAppOption) (*WhatsAppNotifier, error) {
	var cfg WhatsAppOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewWhatsAppNotifier: options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultWhatsAppDBPath
		slog.Debug("NewWhatsAppNotifier: no session DB DSN provided, using default", "path", dbDSN)
	}

	var dbDriver string
	if store.DetectDSNType(dbDSN) == "postgres" {
		dbDriver = "postgres"
	} else {
		dbDriver = "sqlite3"
		// whatsmeow strongly recommends foreign keys on SQLite sessions.
		if !strings.Contains(dbDSN, "foreign_keys") {
			slog.Warn("NewWhatsAppNotifier: SQLite session DB does not appear to have foreign keys enabled",
				"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
		}
	}

	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("NewWhatsAppNotifier: failed to initialize session store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("NewWhatsAppNotifier: failed to get device from session store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp session store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))

	if waClient.Store.ID == nil {
		slog.Info("NewWhatsAppNotifier: login required, starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(context.Background())
		if err := waClient.Connect(); err != nil {
			slog.Error("NewWhatsAppNotifier: failed to connect during login", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if cfg.QRPath != "" {
			f, ferr := os.Create(cfg.QRPath)
			if ferr != nil {
				slog.Error("NewWhatsAppNotifier: failed to create QR file", "error", ferr)
				return nil, fmt.Errorf("failed to create QR file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				slog.Debug("NewWhatsAppNotifier: login code received")
				if cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Debug("NewWhatsAppNotifier: login event", "event", evt.Event)
			}
		}
	} else {
		slog.Debug("NewWhatsAppNotifier: already logged in, connecting")
		if err := waClient.Connect(); err != nil {
			slog.Error("NewWhatsAppNotifier: failed to connect", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}

	slog.Info("NewWhatsAppNotifier: WhatsApp channel connected")
	return &WhatsAppNotifier{waClient: waClient}, nil
}

// Send delivers a nudge as a WhatsApp conversation message.
func (w *WhatsAppNotifier) Send(ctx context.Context, to string, n Notification) error {
	if w.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	body := FormatMessage(n)
	if body == "" {
		return fmt.Errorf("notification cannot be empty")
	}

	slog.Debug("WhatsAppNotifier.Send: sending nudge", "to", to, "body_length", len(body))
	jid := types.NewJID(to, JIDSuffix)
	msg := &waE2E.Message{Conversation: &body}

	if _, err := w.waClient.SendMessage(ctx, jid, msg); err != nil {
		slog.Error("WhatsAppNotifier.Send: delivery failed", "to", to, "error", err)
		return fmt.Errorf("failed to send nudge to %s: %w", to, err)
	}
	slog.Debug("WhatsAppNotifier.Send: nudge delivered", "to", to)
	return nil
}

// Disconnect tears down the WhatsApp connection.
func (w *WhatsAppNotifier) Disconnect() {
	if w.waClient != nil {
		w.waClient.Disconnect()
	}
}
