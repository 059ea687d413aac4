package domain

import "reflect"

// NodeStatus is the externally visible status of one node.
type NodeStatus struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
}

// Status captures the progress of a traversal.
type Status struct {
	Cursor []int        `json:"cursor"`
	Done   bool         `json:"done"`
	Nodes  []NodeStatus `json:"nodes"`
}

// StatusDiff represents the changes between two statuses.
// It is designed to be serialized to JSON for partial updates on the client.
type StatusDiff struct {
	Cursor []int        `json:"cursor,omitempty"`
	Done   *bool        `json:"done,omitempty"`
	Nodes  []NodeStatus `json:"nodes,omitempty"`
}

// Diff calculates the difference between two statuses.
// If old is nil, the diff carries the entire new status. It returns nil when nothing changed.
func Diff(old, cur *Status) *StatusDiff {
	if cur == nil {
		return nil
	}
	diff := &StatusDiff{}
	changed := false

	if old == nil || !reflect.DeepEqual(old.Cursor, cur.Cursor) {
		diff.Cursor = append([]int{}, cur.Cursor...)
		changed = true
	}
	if old == nil || old.Done != cur.Done {
		done := cur.Done
		diff.Done = &done
		changed = true
	}

	prev := make(map[string]NodeStatus)
	if old != nil {
		for _, n := range old.Nodes {
			prev[n.Path] = n
		}
	}
	for _, n := range cur.Nodes {
		if p, ok := prev[n.Path]; ok && p == n {
			continue
		}
		diff.Nodes = append(diff.Nodes, n)
		changed = true
	}

	if !changed {
		return nil
	}
	return diff
}
