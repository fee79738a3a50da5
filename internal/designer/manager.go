package designer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/internal/metrics"
	"github.com/vitebski/schema-designer/internal/sanitizer"
	"github.com/vitebski/schema-designer/internal/store"
	"github.com/vitebski/schema-designer/pkg/models"
)

// ErrNoOwner is returned for schema operations without an authenticated user
var ErrNoOwner = errors.New("no authenticated owner")

// Manager keeps one session per open schema
type Manager struct {
	Store   store.Store
	Options Options
	Logger  *logrus.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager over a store
func NewManager(st store.Store, opts Options, logger *logrus.Logger) *Manager {
	return &Manager{
		Store:    st,
		Options:  opts,
		Logger:   logger,
		sessions: make(map[string]*Session),
	}
}

func sessionKey(ownerID, schemaID string) string {
	return ownerID + "/" + schemaID
}

// Open returns the session for a schema, loading it from the store when it
// is not open yet
func (m *Manager) Open(ctx context.Context, ownerID, schemaID string) (*Session, error) {
	if ownerID == "" {
		return nil, ErrNoOwner
	}
	if s, ok := m.Get(ownerID, schemaID); ok {
		return s, nil
	}

	record, err := m.Store.ReadSchema(ctx, ownerID, schemaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", schemaID, err)
	}
	record.ID = schemaID
	session := NewSession(ownerID, record, m.Store, m.Options, m.Logger)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[sessionKey(ownerID, schemaID)]; ok {
		// Another caller opened it while we were loading
		session.Discard()
		return existing, nil
	}
	m.sessions[sessionKey(ownerID, schemaID)] = session
	metrics.SessionOpened()
	return session, nil
}

// Get returns an already open session
func (m *Manager) Get(ownerID, schemaID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey(ownerID, schemaID)]
	return s, ok
}

// Create stores a new schema with the given starting graph and returns its record
func (m *Manager) Create(ctx context.Context, ownerID, name string, graph models.Graph) (*models.SchemaRecord, error) {
	if ownerID == "" {
		return nil, ErrNoOwner
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = models.DefaultSchemaName
	}

	clean := sanitizer.SanitizeGraph(graph)
	if clean.Nodes == nil {
		clean.Nodes = []models.Node{}
	}
	if clean.Edges == nil {
		clean.Edges = []models.Edge{}
	}

	record := &models.SchemaRecord{
		ID:             store.NewSchemaID(),
		OwnerID:        ownerID,
		Name:           name,
		Nodes:          clean.Nodes,
		Edges:          clean.Edges,
		LastModified:   m.now().UTC(),
		LastModifiedBy: ownerID,
	}
	if err := m.Store.WriteSchema(ctx, ownerID, record.ID, record); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	m.Logger.Infof("Created schema %s (%s) for %s", record.ID, name, ownerID)
	return record, nil
}

// Load returns the live state of an open schema, or the stored record
func (m *Manager) Load(ctx context.Context, ownerID, schemaID string) (*models.SchemaRecord, error) {
	if ownerID == "" {
		return nil, ErrNoOwner
	}
	if s, ok := m.Get(ownerID, schemaID); ok {
		record := s.Record()
		return &record, nil
	}
	record, err := m.Store.ReadSchema(ctx, ownerID, schemaID)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// List returns the owner's schemas, newest first
func (m *Manager) List(ctx context.Context, ownerID string) ([]models.SchemaRecord, error) {
	if ownerID == "" {
		return nil, ErrNoOwner
	}
	records, err := m.Store.ListSchemas(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.SchemaRecord{}
	}
	store.SortByLastModified(records)
	return records, nil
}

// Close flushes and closes a session. Closing a schema that is not open is a no-op.
func (m *Manager) Close(ctx context.Context, ownerID, schemaID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionKey(ownerID, schemaID)]
	delete(m.sessions, sessionKey(ownerID, schemaID))
	m.mu.Unlock()

	if !ok {
		return nil
	}
	metrics.SessionClosed()
	if err := s.Close(ctx); err != nil {
		return fmt.Errorf("failed to flush schema %s: %w", schemaID, err)
	}
	return nil
}

// Delete discards any open session and removes the schema from the store
func (m *Manager) Delete(ctx context.Context, ownerID, schemaID string) error {
	if ownerID == "" {
		return ErrNoOwner
	}

	m.mu.Lock()
	s, ok := m.sessions[sessionKey(ownerID, schemaID)]
	delete(m.sessions, sessionKey(ownerID, schemaID))
	m.mu.Unlock()

	if ok {
		s.Discard()
		metrics.SessionClosed()
	}
	if err := m.Store.DeleteSchema(ctx, ownerID, schemaID); err != nil {
		return err
	}
	m.Logger.Infof("Deleted schema %s of %s", schemaID, ownerID)
	return nil
}

// CloseAll flushes and closes every open session
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		metrics.SessionClosed()
		if err := s.Close(ctx); err != nil {
			m.Logger.Errorf("Error flushing schema %s: %v", s.SchemaID, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenSessions returns how many sessions are open
func (m *Manager) OpenSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) now() time.Time {
	if m.Options.Clock != nil {
		return m.Options.Clock.Now()
	}
	return time.Now()
}
