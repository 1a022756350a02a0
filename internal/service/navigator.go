package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fertility-cds-server/internal/domain"
)

// Navigator walks a fixed decision graph. It encodes graph structure only and
// never judges whether a clinical path makes sense. States are values owned by
// the caller; the navigator itself is read-only and safe for concurrent use.
type Navigator struct {
	graph  domain.DecisionGraph
	logger *logrus.Logger
}

// NewNavigator creates a navigator over the graph. The graph is not copied and
// must not be mutated afterwards.
func NewNavigator(graph domain.DecisionGraph, logger *logrus.Logger) *Navigator {
	return &Navigator{graph: graph, logger: logger}
}

// Graph returns the graph being navigated.
func (n *Navigator) Graph() domain.DecisionGraph {
	return n.graph
}

// Start returns a fresh state positioned at the start node.
func (n *Navigator) Start() domain.NavigatorState {
	return domain.NavigatorState{
		CurrentID: n.graph.StartID,
		History:   []string{n.graph.StartID},
	}
}

// Reset discards the walk and returns a fresh start state, whatever its depth.
func (n *Navigator) Reset(_ domain.NavigatorState) domain.NavigatorState {
	return n.Start()
}

// Current looks up the node the state points at.
func (n *Navigator) Current(state domain.NavigatorState) (domain.DecisionNode, error) {
	node, ok := n.graph.Node(state.CurrentID)
	if !ok {
		return domain.DecisionNode{}, fmt.Errorf("node %q: %w", state.CurrentID, domain.ErrUnknownNode)
	}
	return node, nil
}

// Advance follows option optionIndex of the current question node and returns
// the new state. The given state is never modified.
//
// A terminal current node or an index outside its options is
// ErrInvalidTransition. A current id or option target missing from the graph
// is ErrUnknownNode.
func (n *Navigator) Advance(state domain.NavigatorState, optionIndex int) (domain.NavigatorState, error) {
	node, err := n.Current(state)
	if err != nil {
		return state, err
	}

	if node.IsTerminal() {
		return state, fmt.Errorf("node %q is terminal: %w", node.ID, domain.ErrInvalidTransition)
	}
	if optionIndex < 0 || optionIndex >= len(node.Options) {
		return state, fmt.Errorf("option %d of node %q (has %d): %w",
			optionIndex, node.ID, len(node.Options), domain.ErrInvalidTransition)
	}

	option := node.Options[optionIndex]
	if _, ok := n.graph.Node(option.NextID); !ok {
		return state, fmt.Errorf("option %d of node %q points to %q: %w",
			optionIndex, node.ID, option.NextID, domain.ErrUnknownNode)
	}

	history := make([]string, len(state.History), len(state.History)+1)
	copy(history, state.History)
	next := domain.NavigatorState{
		CurrentID: option.NextID,
		History:   append(history, option.NextID),
	}

	if n.logger != nil {
		n.logger.WithFields(logrus.Fields{
			"from":   node.ID,
			"option": option.Label,
			"to":     option.NextID,
			"depth":  next.Depth(),
		}).Debug("Decision tree advanced")
	}

	return next, nil
}

// AdvanceByLabel is Advance with the option chosen by its label.
func (n *Navigator) AdvanceByLabel(state domain.NavigatorState, label string) (domain.NavigatorState, error) {
	node, err := n.Current(state)
	if err != nil {
		return state, err
	}
	for i, opt := range node.Options {
		if opt.Label == label {
			return n.Advance(state, i)
		}
	}
	return state, fmt.Errorf("node %q has no option %q: %w", node.ID, label, domain.ErrInvalidTransition)
}

// Breadcrumb resolves the state's history to nodes for display. Unknown ids
// are reported with ErrUnknownNode.
func (n *Navigator) Breadcrumb(state domain.NavigatorState) ([]domain.DecisionNode, error) {
	nodes := make([]domain.DecisionNode, 0, len(state.History))
	for _, id := range state.History {
		node, ok := n.graph.Node(id)
		if !ok {
			return nil, fmt.Errorf("history node %q: %w", id, domain.ErrUnknownNode)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
