package conversation

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

// ReplayPointer re-derives a consistent current-node pointer from a session's
// response list by replaying the branch rules from the entry node. Used on
// resume when a crash separated the response write from the pointer update.
// Returns the empty string when the replay walks past the terminal node.
func ReplayPointer(g *Graph, session *models.ConversationSession) (string, error) {
	current := g.Entry().ID
	for _, r := range session.Responses {
		if r.NodeID != current {
			// Stale or out-of-order record from a revisit; the latest
			// response for the derived node is the one that moves us.
			continue
		}
		value, err := r.Value()
		if err != nil {
			return "", fmt.Errorf("session %s has undecodable response for node %s: %w", session.ID, r.NodeID, err)
		}
		next, err := g.Next(current, value)
		if err != nil {
			return "", err
		}
		if next == models.TerminalNodeID {
			slog.Debug("ReplayPointer: replay reached terminal node", "sessionID", session.ID)
			return "", nil
		}
		current = next
	}
	return current, nil
}
