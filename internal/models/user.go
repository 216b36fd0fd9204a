// Package models defines user records for CoachPipe.
package models

import "time"

// AbsencePreference is the stored communication preference for how the coach
// should respond when the user goes quiet.
type AbsencePreference string

const (
	// AbsenceCheckIn means the user wants a nudge when they lapse.
	AbsenceCheckIn AbsencePreference = "check_in"
	// AbsenceGentleReminder means the user wants a soft, low-pressure nudge.
	AbsenceGentleReminder AbsencePreference = "gentle_reminder"
	// AbsenceGiveMeSpace is the opt-out: no nudges, no generation, nothing sent.
	AbsenceGiveMeSpace AbsencePreference = "give_me_space"
)

// UserStatus constants.
const (
	UserStatusActive    = "active"
	UserStatusPaused    = "paused"
	UserStatusWithdrawn = "withdrawn"
)

// User is an enrolled participant of the coaching program.
type User struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	PhoneNumber      string            `json:"phone_number,omitempty"`
	Timezone         string            `json:"timezone,omitempty"`
	Status           string            `json:"status"`
	AbsenceResponse  AbsencePreference `json:"absence_response,omitempty"`
	ProfileComplete  bool              `json:"profile_complete"`
	PersonaID        string            `json:"persona_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	LastActiveAt     time.Time         `json:"last_active_at"`
}

// WantsSpace reports whether the user opted out of re-engagement nudges.
func (u *User) WantsSpace() bool {
	return u.AbsenceResponse == AbsenceGiveMeSpace
}
