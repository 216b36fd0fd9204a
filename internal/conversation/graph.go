// Package conversation implements the onboarding conversation engine: the
// immutable question graph and the flow manager that drives a session
// through it.
package conversation

import (
	"fmt"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

// Graph is an immutable directed graph of conversation nodes. Node order
// defines the primary path; branch rules may only jump forward, and the
// implicit default after the last node is the terminal sentinel.
type Graph struct {
	nodes []models.ConversationNode
	index map[string]int
}

// NewGraph validates the node list and builds a graph. It rejects empty
// graphs, duplicate node IDs, unknown branch targets, and branch rules that
// point backward or at the node itself (a configuration error, not a runtime
// state).
func NewGraph(nodes []models.ConversationNode) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("conversation graph requires at least one node")
	}
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node at position %d has empty ID", i)
		}
		if n.ID == models.TerminalNodeID {
			return nil, fmt.Errorf("node ID %q is reserved", models.TerminalNodeID)
		}
		if _, exists := index[n.ID]; exists {
			return nil, fmt.Errorf("duplicate node ID %q", n.ID)
		}
		index[n.ID] = i
	}
	for i, n := range nodes {
		for _, rule := range n.BranchRules {
			if rule.Target == models.TerminalNodeID {
				continue
			}
			target, ok := index[rule.Target]
			if !ok {
				return nil, fmt.Errorf("node %q branch targets unknown node %q", n.ID, rule.Target)
			}
			if target <= i {
				return nil, fmt.Errorf("node %q branch targets %q, which is not forward of it", n.ID, rule.Target)
			}
		}
	}
	return &Graph{nodes: nodes, index: index}, nil
}

// Len returns the number of nodes on the primary path.
func (g *Graph) Len() int { return len(g.nodes) }

// Entry returns the graph's designated entry node.
func (g *Graph) Entry() *models.ConversationNode {
	return &g.nodes[0]
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*models.ConversationNode, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return &g.nodes[i], true
}

// IndexOf returns the position of a node on the primary path, -1 when unknown.
func (g *Graph) IndexOf(id string) int {
	i, ok := g.index[id]
	if !ok {
		return -1
	}
	return i
}

// Next evaluates the node's branch rules against an accepted answer, in
// order, first match wins. When no rule matches (or the answer is a skip
// marker) it falls through to the next sequential node. Returns
// models.TerminalNodeID when the conversation is over.
func (g *Graph) Next(nodeID string, v models.ResponseValue) (string, error) {
	i, ok := g.index[nodeID]
	if !ok {
		return "", fmt.Errorf("unknown node %q", nodeID)
	}
	if !v.IsSkipped() {
		for _, rule := range g.nodes[i].BranchRules {
			if rule.Matches(v) {
				return rule.Target, nil
			}
		}
	}
	if i+1 >= len(g.nodes) {
		return models.TerminalNodeID, nil
	}
	return g.nodes[i+1].ID, nil
}
