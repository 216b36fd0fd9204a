// Package engagement implements the re-engagement policy for lapsed users:
// detecting users who have gone quiet, composing a persona-voiced nudge, and
// honoring the "give me space" opt-out from onboarding.
package engagement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/CoachPipe/internal/genai"
	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/BTreeMap/CoachPipe/internal/notify"
	"github.com/BTreeMap/CoachPipe/internal/store"
)

// LapseThreshold is how long a user must be inactive before they count as
// lapsed. Three full days keeps nudges out of normal rest-day gaps.
const LapseThreshold = 72 * time.Hour

// Policy decides when and how to reach out to inactive users.
type Policy struct {
	store       store.Store
	genaiClient genai.ClientInterface
	notifier    notify.Notifier
}

// NewPolicy creates an engagement policy.
func NewPolicy(st store.Store, genaiClient genai.ClientInterface, notifier notify.Notifier) *Policy {
	return &Policy{store: st, genaiClient: genaiClient, notifier: notifier}
}

// DetectLapsedUsers returns active users whose last activity is older than
// the lapse threshold relative to now.
func (p *Policy) DetectLapsedUsers(ctx context.Context, now time.Time) ([]models.User, error) {
	cutoff := now.Add(-LapseThreshold)
	users, err := p.store.ListUsersInactiveSince(cutoff)
	if err != nil {
		slog.Error("Policy.DetectLapsedUsers: store query failed", "error", err)
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	slog.Debug("Policy.DetectLapsedUsers: scan complete", "cutoff", cutoff, "lapsed", len(users))
	return users, nil
}

// UpdateUserActivity records that a user was active at the given time and
// reactivates a paused user.
func (p *Policy) UpdateUserActivity(ctx context.Context, userID string, at time.Time) error {
	user, err := p.store.GetUser(userID)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if user == nil {
		return fmt.Errorf("%w: %s", models.ErrUserNotFound, userID)
	}
	user.LastActiveAt = at
	if user.Status == models.UserStatusPaused {
		user.Status = models.UserStatusActive
	}
	if err := p.store.SaveUser(*user); err != nil {
		slog.Error("Policy.UpdateUserActivity: failed to save user", "userID", userID, "error", err)
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	slog.Debug("Policy.UpdateUserActivity: activity recorded", "userID", userID, "at", at)
	return nil
}

// SendReEngagementNotification sends one persona-voiced nudge to a lapsed
// user. Users who chose "give me space" during onboarding are skipped
// without any generation call. A generation failure is logged and nothing is
// sent; users without a synthesized persona get the template nudge directly.
func (p *Policy) SendReEngagementNotification(ctx context.Context, user *models.User, persona *models.CoachPersona) error {
	if user.WantsSpace() {
		slog.Debug("Policy.SendReEngagementNotification: user opted out, skipping", "userID", user.ID)
		return nil
	}
	if user.PhoneNumber == "" {
		slog.Warn("Policy.SendReEngagementNotification: user has no channel address", "userID", user.ID)
		return nil
	}

	n, ok := p.composeNudge(ctx, user, persona)
	if !ok {
		return nil
	}
	if err := p.notifier.Send(ctx, user.PhoneNumber, n); err != nil {
		slog.Error("Policy.SendReEngagementNotification: delivery failed", "userID", user.ID, "error", err)
		return err
	}
	slog.Info("Policy.SendReEngagementNotification: nudge sent", "userID", user.ID)
	return nil
}

// composeNudge asks the coach persona for a short check-in message. The
// second return is false when a generation attempt failed, in which case no
// nudge is dispatched for this cycle.
func (p *Policy) composeNudge(ctx context.Context, user *models.User, persona *models.CoachPersona) (notify.Notification, bool) {
	if persona == nil || persona.SystemPrompt == "" {
		return fallbackNudge(user, persona), true
	}

	userPrompt := fmt.Sprintf(
		"%s hasn't checked in for a few days. Write one short, warm check-in message (two sentences max) in your voice. "+
			"Preference for absence: %s. Do not guilt-trip.",
		displayName(user), absenceTone(user),
	)
	body, err := p.genaiClient.GeneratePrompt(ctx, persona.SystemPrompt, userPrompt)
	if err != nil {
		slog.Warn("Policy.composeNudge: generation failed, skipping nudge this cycle", "userID", user.ID, "error", err)
		return notify.Notification{}, false
	}
	if body == "" {
		slog.Warn("Policy.composeNudge: empty generation, skipping nudge this cycle", "userID", user.ID)
		return notify.Notification{}, false
	}
	return notify.Notification{Title: nudgeTitle(persona), Body: body}, true
}

func fallbackNudge(user *models.User, persona *models.CoachPersona) notify.Notification {
	return notify.Notification{
		Title: nudgeTitle(persona),
		Body:  fmt.Sprintf("Hey %s, no pressure at all. Whenever you're ready, I'm here for your next session.", displayName(user)),
	}
}

func nudgeTitle(persona *models.CoachPersona) string {
	if persona != nil && persona.Name != "" {
		return persona.Name + " checked in"
	}
	return "Your coach checked in"
}

func displayName(user *models.User) string {
	if user.Name != "" {
		return user.Name
	}
	return models.DefaultUserName
}

func absenceTone(user *models.User) string {
	if user.AbsenceResponse == "" {
		return string(models.AbsenceCheckIn)
	}
	return string(user.AbsenceResponse)
}
