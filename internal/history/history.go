package history

import (
	"sync"

	"github.com/vitebski/schema-designer/pkg/models"
)

// Stack is a linear undo/redo ledger of graph snapshots. Pushing after an
// undo discards every snapshot after the current position.
type Stack struct {
	mu        sync.RWMutex
	snapshots []models.Graph
	position  int
}

// NewStack creates a stack holding the initial graph at position 0
func NewStack(initial models.Graph) *Stack {
	return &Stack{
		snapshots: []models.Graph{initial.Clone()},
	}
}

// Push records a new snapshot after the current position
func (s *Stack) Push(nodes []models.Node, edges []models.Edge) {
	snapshot := models.Graph{Nodes: nodes, Edges: edges}.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = append(s.snapshots[:s.position+1], snapshot)
	s.position = len(s.snapshots) - 1
}

// Undo steps back one snapshot and returns it. At the start it returns the current snapshot.
func (s *Stack) Undo() models.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position > 0 {
		s.position--
	}
	return s.snapshots[s.position].Clone()
}

// Redo steps forward one snapshot and returns it. At the end it returns the current snapshot.
func (s *Stack) Redo() models.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position < len(s.snapshots)-1 {
		s.position++
	}
	return s.snapshots[s.position].Clone()
}

// Current returns the snapshot at the current position
func (s *Stack) Current() models.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshots[s.position].Clone()
}

// CanUndo reports whether an earlier snapshot exists
func (s *Stack) CanUndo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position > 0
}

// CanRedo reports whether a later snapshot exists
func (s *Stack) CanRedo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position < len(s.snapshots)-1
}

// Len returns the number of snapshots
func (s *Stack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Position returns the index of the current snapshot
func (s *Stack) Position() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

// State is a point-in-time view of the stack counters
type State struct {
	Length   int  `json:"length"`
	Position int  `json:"position"`
	CanUndo  bool `json:"canUndo"`
	CanRedo  bool `json:"canRedo"`
}

// State returns the stack counters under a single lock
func (s *Stack) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Length:   len(s.snapshots),
		Position: s.position,
		CanUndo:  s.position > 0,
		CanRedo:  s.position < len(s.snapshots)-1,
	}
}
