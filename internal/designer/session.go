package designer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/internal/autosave"
	"github.com/vitebski/schema-designer/internal/exporter"
	"github.com/vitebski/schema-designer/internal/history"
	"github.com/vitebski/schema-designer/internal/metrics"
	"github.com/vitebski/schema-designer/internal/sanitizer"
	"github.com/vitebski/schema-designer/pkg/models"
)

// MaxNotifications is how many save notifications a session remembers
const MaxNotifications = 20

// Options tune the sessions opened by a manager. Zero values use the defaults.
type Options struct {
	QuietPeriod time.Duration
	SaveTimeout time.Duration
	Clock       autosave.Clock
	IDs         IDSource
	Notifier    autosave.Notifier
}

// Listener is called with the graph after every change
type Listener func(g models.Graph)

// Session is an open designer over one schema. It owns the live graph, the
// undo history and the autosave coordinator, and serializes every mutation.
type Session struct {
	OwnerID  string
	SchemaID string
	Logger   *logrus.Logger

	mu        sync.RWMutex
	name      string
	graph     models.Graph
	lastSaved time.Time
	history   *history.Stack
	autosave  *autosave.Coordinator
	ids       IDSource

	listenersMu  sync.Mutex
	listeners    map[int]Listener
	nextListener int

	notificationsMu sync.Mutex
	notifications   []autosave.Notification
}

// NewSession opens a session over a stored record. The record is sanitized
// before it becomes the live graph and the first history entry.
func NewSession(ownerID string, record *models.SchemaRecord, writer autosave.Writer, opts Options, logger *logrus.Logger) *Session {
	dangling := sanitizer.DanglingEdges(record.Nodes, record.Edges)
	if dangling > 0 {
		logger.Warningf("Dropped %d dangling edge(s) while loading schema %s", dangling, record.ID)
	}
	graph := sanitizer.SanitizeGraph(record.Graph())

	name := record.Name
	if name == "" {
		name = models.DefaultSchemaName
	}

	ids := opts.IDs
	if ids == nil {
		ids = NewID
	}

	s := &Session{
		OwnerID:   ownerID,
		SchemaID:  record.ID,
		Logger:    logger,
		name:      name,
		graph:     graph,
		lastSaved: record.LastModified,
		history:   history.NewStack(graph),
		ids:       ids,
		listeners: make(map[int]Listener),
	}

	notifier := autosave.MultiNotifier(
		autosave.LogNotifier{Logger: logger},
		autosave.NotifierFunc(s.recordNotification),
		opts.Notifier,
	)
	s.autosave = autosave.NewCoordinator(s, writer, s.history, notifier, logger)
	if opts.Clock != nil {
		s.autosave.Clock = opts.Clock
	}
	if opts.QuietPeriod > 0 {
		s.autosave.QuietPeriod = opts.QuietPeriod
	}
	if opts.SaveTimeout > 0 {
		s.autosave.SaveTimeout = opts.SaveTimeout
	}

	logger.Infof("Opened schema %s (%d nodes, %d edges)", s.SchemaID, len(graph.Nodes), len(graph.Edges))
	return s
}

// SaveState returns the state the autosave coordinator persists
func (s *Session) SaveState() autosave.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return autosave.State{
		OwnerID:  s.OwnerID,
		SchemaID: s.SchemaID,
		Name:     s.name,
		Graph:    s.graph.Clone(),
	}
}

// Dispatch applies an action to the live graph and schedules an autosave.
// A rejected action leaves the graph untouched.
func (s *Session) Dispatch(action Action) (models.Graph, error) {
	s.mu.Lock()
	next, err := Apply(s.graph, action, s.ids)
	if err != nil {
		current := s.graph.Clone()
		s.mu.Unlock()
		metrics.ActionApplied(action.Kind(), err)
		s.Logger.Debugf("Rejected %s on schema %s: %v", action.Kind(), s.SchemaID, err)
		return current, err
	}
	s.graph = next
	snapshot := next.Clone()
	s.mu.Unlock()

	metrics.ActionApplied(action.Kind(), nil)
	s.changed(snapshot)
	return snapshot, nil
}

// Rename changes the schema name. Blank names become the default name.
func (s *Session) Rename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = models.DefaultSchemaName
	}

	s.mu.Lock()
	s.name = name
	snapshot := s.graph.Clone()
	s.mu.Unlock()

	s.changed(snapshot)
	return name
}

// Undo restores the previous saved snapshot. It reports false when there is
// nothing to undo.
func (s *Session) Undo() (models.Graph, bool) {
	return s.travel(s.history.CanUndo, s.history.Undo)
}

// Redo restores the next saved snapshot. It reports false when there is
// nothing to redo.
func (s *Session) Redo() (models.Graph, bool) {
	return s.travel(s.history.CanRedo, s.history.Redo)
}

func (s *Session) travel(can func() bool, move func() models.Graph) (models.Graph, bool) {
	if !can() {
		return s.Graph(), false
	}
	g := move()

	s.mu.Lock()
	s.graph = g.Clone()
	s.mu.Unlock()

	s.changed(g)
	return g, true
}

// changed fans the graph out to listeners and restarts the autosave quiet period.
// Must be called without s.mu held.
func (s *Session) changed(g models.Graph) {
	s.listenersMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l(g.Clone())
	}
	s.autosave.Changed()
}

// Subscribe registers a listener and returns a function that removes it
func (s *Session) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

// Graph returns a copy of the live graph
func (s *Session) Graph() models.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Clone()
}

// Name returns the schema name
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Record returns the live state in its persisted form
func (s *Session) Record() models.SchemaRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.graph.Clone()
	return models.SchemaRecord{
		ID:             s.SchemaID,
		OwnerID:        s.OwnerID,
		Name:           s.name,
		Nodes:          g.Nodes,
		Edges:          g.Edges,
		LastModified:   s.lastSaved,
		LastModifiedBy: s.OwnerID,
	}
}

// HistoryState returns the undo/redo state
func (s *Session) HistoryState() history.State {
	return s.history.State()
}

// Notifications returns the most recent save notifications, oldest first
func (s *Session) Notifications() []autosave.Notification {
	s.notificationsMu.Lock()
	defer s.notificationsMu.Unlock()
	out := make([]autosave.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

func (s *Session) recordNotification(n autosave.Notification) {
	if n.Level == autosave.LevelSuccess {
		s.mu.Lock()
		s.lastSaved = n.At
		s.mu.Unlock()
	}

	s.notificationsMu.Lock()
	defer s.notificationsMu.Unlock()
	s.notifications = append(s.notifications, n)
	if len(s.notifications) > MaxNotifications {
		s.notifications = s.notifications[len(s.notifications)-MaxNotifications:]
	}
}

// PendingSave reports whether changes are waiting for the quiet period to end
func (s *Session) PendingSave() bool {
	return s.autosave.Pending()
}

// SaveNow saves immediately instead of waiting for the quiet period
func (s *Session) SaveNow(ctx context.Context) error {
	return s.autosave.SaveNow(ctx)
}

// Close waits for a running save, flushes pending changes and stops autosaving
func (s *Session) Close(ctx context.Context) error {
	err := s.autosave.Flush(ctx)
	s.autosave.Stop()
	return err
}

// Discard stops autosaving without flushing pending changes
func (s *Session) Discard() {
	s.autosave.Stop()
}

// Export renders the live graph in the given format
func (s *Session) Export(format exporter.Format) (exporter.Document, error) {
	s.mu.RLock()
	name := s.name
	g := s.graph.Clone()
	s.mu.RUnlock()

	doc, err := exporter.Export(name, format, g.Nodes, g.Edges)
	if err != nil {
		return exporter.Document{}, err
	}
	metrics.Exported(string(format))
	return doc, nil
}
