package engagement

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/BTreeMap/CoachPipe/internal/scheduler"
	"github.com/BTreeMap/CoachPipe/internal/store"
)

// DefaultScanCron runs the lapsed-user scan every hour on the hour.
const DefaultScanCron = "0 * * * *"

// Scanner periodically runs the lapse detection and nudging pass.
type Scanner struct {
	policy *Policy
	store  store.Store
	sched  *scheduler.Scheduler

	// inFlight guards against overlapping scans. It is in-memory only: a
	// restart mid-scan simply allows the next tick to run.
	inFlight atomic.Bool
}

// NewScanner creates a scanner over a started scheduler.
func NewScanner(policy *Policy, st store.Store, sched *scheduler.Scheduler) *Scanner {
	return &Scanner{policy: policy, store: st, sched: sched}
}

// Start registers the recurring scan. An empty cron expression uses the
// default hourly schedule.
func (s *Scanner) Start(cronExpr string) error {
	if cronExpr == "" {
		cronExpr = DefaultScanCron
	}
	slog.Info("Scanner.Start: registering lapsed-user scan", "cron", cronExpr)
	return s.sched.AddJob(cronExpr, func() {
		s.Scan(context.Background(), time.Now())
	})
}

// Scan runs one detection and nudging pass. Overlapping invocations are
// dropped rather than queued. Per-user failures are logged and do not stop
// the pass; the return value is how many nudges were sent.
func (s *Scanner) Scan(ctx context.Context, now time.Time) int {
	if !s.inFlight.CompareAndSwap(false, true) {
		slog.Debug("Scanner.Scan: previous scan still running, skipping")
		return 0
	}
	defer s.inFlight.Store(false)

	lapsed, err := s.policy.DetectLapsedUsers(ctx, now)
	if err != nil {
		slog.Error("Scanner.Scan: detection failed", "error", err)
		return 0
	}

	sent := 0
	for i := range lapsed {
		user := &lapsed[i]
		if user.WantsSpace() {
			continue
		}
		persona := s.personaFor(user)
		if err := s.policy.SendReEngagementNotification(ctx, user, persona); err != nil {
			slog.Error("Scanner.Scan: nudge failed", "userID", user.ID, "error", err)
			continue
		}
		sent++
	}
	slog.Info("Scanner.Scan: pass complete", "lapsed", len(lapsed), "sent", sent)
	return sent
}

// personaFor loads the user's coach persona. A missing persona degrades to
// the template nudge, so load failures are non-fatal.
func (s *Scanner) personaFor(user *models.User) *models.CoachPersona {
	if user.PersonaID == "" {
		return nil
	}
	persona, err := s.store.GetPersona(user.PersonaID)
	if err != nil {
		slog.Warn("Scanner.personaFor: persona load failed", "userID", user.ID, "personaID", user.PersonaID, "error", err)
		return nil
	}
	return persona
}
