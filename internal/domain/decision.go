package domain

import "fmt"

// DecisionOption is one answer to a question node.
type DecisionOption struct {
	Label  string `json:"label" yaml:"label"`
	NextID string `json:"nextId" yaml:"next"`
}

// DecisionNode is an immutable node of a diagnostic decision graph. A terminal
// node has no options and may carry a recommendation key.
type DecisionNode struct {
	ID                string           `json:"id" yaml:"id"`
	Kind              NodeKind         `json:"kind" yaml:"kind"`
	Prompt            string           `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Options           []DecisionOption `json:"options,omitempty" yaml:"options,omitempty"`
	RecommendationKey string           `json:"recommendationKey,omitempty" yaml:"recommendation,omitempty"`
}

// IsTerminal reports whether the walk ends at this node. Terminal nodes are
// identified purely by having no options.
func (n DecisionNode) IsTerminal() bool {
	return len(n.Options) == 0
}

// DecisionGraph is an explicit node table. It need not be acyclic.
type DecisionGraph struct {
	StartID string                  `json:"startId" yaml:"start"`
	Nodes   map[string]DecisionNode `json:"nodes" yaml:"nodes"`
}

// Node looks up a node by id.
func (g DecisionGraph) Node(id string) (DecisionNode, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// Problems lists structural problems of the graph. An empty result means the
// graph is well formed. Dangling option targets are reported here; navigation
// rejects them at runtime regardless.
func (g DecisionGraph) Problems() []string {
	var problems []string

	if g.StartID == "" {
		problems = append(problems, "start node id is empty")
	} else if _, ok := g.Nodes[g.StartID]; !ok {
		problems = append(problems, fmt.Sprintf("start node %q is not defined", g.StartID))
	}

	for _, id := range sortedKeys(g.Nodes) {
		node := g.Nodes[id]
		if node.ID != id {
			problems = append(problems, fmt.Sprintf("node %q is stored under key %q", node.ID, id))
		}
		if node.Kind != "" && !node.Kind.IsValid() {
			problems = append(problems, fmt.Sprintf("node %q has unknown kind %q", id, node.Kind))
		}
		if node.Kind == NodeQuestion && len(node.Options) == 0 {
			problems = append(problems, fmt.Sprintf("question node %q has no options", id))
		}
		if node.Kind == NodeTerminal && len(node.Options) > 0 {
			problems = append(problems, fmt.Sprintf("terminal node %q has options", id))
		}
		for i, opt := range node.Options {
			if _, ok := g.Nodes[opt.NextID]; !ok {
				problems = append(problems, fmt.Sprintf("node %q option %d points to undefined node %q", id, i, opt.NextID))
			}
		}
	}

	return problems
}

// NavigatorState is the position of one walk through a decision graph.
// It is a value: operations return a new state and never share the history
// backing array with the state they were given.
type NavigatorState struct {
	CurrentID string   `json:"currentId"`
	History   []string `json:"history"`
}

// Depth returns the number of nodes visited, including the current one.
func (s NavigatorState) Depth() int {
	return len(s.History)
}
