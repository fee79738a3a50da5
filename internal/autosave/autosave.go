package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/internal/history"
	"github.com/vitebski/schema-designer/internal/metrics"
	"github.com/vitebski/schema-designer/internal/sanitizer"
	"github.com/vitebski/schema-designer/pkg/models"
)

// Defaults for the coordinator timing
const (
	DefaultQuietPeriod = 2000 * time.Millisecond
	DefaultSaveTimeout = 10 * time.Second
)

// ErrSaveInFlight is returned by SaveNow while another save is running
var ErrSaveInFlight = errors.New("a save is already in progress")

// State is what the coordinator persists: who owns the schema, which schema
// it is and the live graph.
type State struct {
	OwnerID  string
	SchemaID string
	Name     string
	Graph    models.Graph
}

// StateSource provides the live state at the moment a save starts
type StateSource interface {
	SaveState() State
}

// Writer persists a schema record
type Writer interface {
	WriteSchema(ctx context.Context, ownerID, schemaID string, record *models.SchemaRecord) error
}

// Coordinator debounces graph changes into schema writes and records every
// confirmed write in the history stack.
type Coordinator struct {
	Source      StateSource
	Store       Writer
	History     *history.Stack
	Sanitizer   *sanitizer.Sanitizer
	Notifier    Notifier
	Clock       Clock
	QuietPeriod time.Duration
	SaveTimeout time.Duration
	Logger      *logrus.Logger

	mu         sync.Mutex
	timer      Timer
	generation uint64
	inFlight   bool
	rerun      bool // a trigger arrived during a save
	idle       chan struct{}
	stopped    bool
}

// NewCoordinator creates a coordinator with the default quiet period and a real clock
func NewCoordinator(source StateSource, store Writer, stack *history.Stack, notifier Notifier, logger *logrus.Logger) *Coordinator {
	return &Coordinator{
		Source:      source,
		Store:       store,
		History:     stack,
		Sanitizer:   sanitizer.NewSanitizer(),
		Notifier:    notifier,
		Clock:       RealClock(),
		QuietPeriod: DefaultQuietPeriod,
		SaveTimeout: DefaultSaveTimeout,
		Logger:      logger,
	}
}

// Changed restarts the quiet period. Call it after every mutation of the
// graph or the schema name.
func (c *Coordinator) Changed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.restartLocked()
}

func (c *Coordinator) restartLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.generation++
	gen := c.generation
	c.timer = c.clock().AfterFunc(c.quietPeriod(), func() {
		c.fire(gen)
	})
}

// Pending reports whether changes are waiting to be saved
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil || c.rerun
}

// InFlight reports whether a save is currently running
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// SaveNow cancels the pending quiet period and saves immediately. While
// another save is running it returns ErrSaveInFlight and the pending
// changes stay scheduled.
func (c *Coordinator) SaveNow(ctx context.Context) error {
	c.mu.Lock()
	if c.inFlight {
		c.skipLocked()
		c.mu.Unlock()
		return ErrSaveInFlight
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
	c.rerun = false
	c.beginLocked()
	c.mu.Unlock()

	return c.save(ctx)
}

// Wait blocks until no save is running
func (c *Coordinator) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		idle := c.idle
		c.mu.Unlock()
		if idle == nil {
			return nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Flush waits for a running save to finish, then writes any change that
// has not been saved yet
func (c *Coordinator) Flush(ctx context.Context) error {
	for {
		if err := c.Wait(ctx); err != nil {
			return err
		}
		if !c.Pending() {
			return nil
		}
		if err := c.SaveNow(ctx); !errors.Is(err, ErrSaveInFlight) {
			return err
		}
	}
}

// Stop cancels the pending quiet period. Later changes are ignored.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	c.rerun = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.stopped {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	if c.inFlight {
		c.skipLocked()
		c.mu.Unlock()
		return
	}
	c.beginLocked()
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.saveTimeout())
	defer cancel()

	if err := c.save(ctx); err != nil {
		c.Logger.Debugf("Autosave attempt failed: %v", err)
	}
}

func (c *Coordinator) skipLocked() {
	c.rerun = true
	metrics.SaveSkipped("in_flight")
	c.Logger.Debug("Save already in progress, retrying once it finishes")
}

func (c *Coordinator) beginLocked() {
	c.inFlight = true
	c.idle = make(chan struct{})
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inFlight = false
	close(c.idle)
	c.idle = nil
	if c.rerun && !c.stopped {
		c.rerun = false
		c.restartLocked()
	}
}

// save writes the live state. The caller has marked the save in flight.
func (c *Coordinator) save(ctx context.Context) error {
	defer c.finish()

	state := c.Source.SaveState()
	if state.OwnerID == "" || state.SchemaID == "" {
		metrics.SaveSkipped("no_owner")
		c.Logger.Debug("No owner or schema id, skipping save")
		return nil
	}

	nodes, edges := c.sanitizerOrDefault().Sanitize(state.Graph.Nodes, state.Graph.Edges)
	name := state.Name
	if name == "" {
		name = models.DefaultSchemaName
	}
	now := c.clock().Now().UTC()
	record := &models.SchemaRecord{
		ID:             state.SchemaID,
		OwnerID:        state.OwnerID,
		Name:           name,
		Nodes:          nodes,
		Edges:          edges,
		LastModified:   now,
		LastModifiedBy: state.OwnerID,
	}

	started := time.Now()
	err := c.Store.WriteSchema(ctx, state.OwnerID, state.SchemaID, record)
	metrics.ObserveSave(err, time.Since(started))
	if err != nil {
		c.Logger.Errorf("Error saving schema %s: %v", state.SchemaID, err)
		c.notify(Notification{
			Level:    LevelError,
			Message:  MessageSaveFailed,
			SchemaID: state.SchemaID,
			At:       now,
			Error:    err.Error(),
		})
		return fmt.Errorf("failed to save schema %s: %w", state.SchemaID, err)
	}

	snapshot := models.Graph{Nodes: nodes, Edges: edges}
	if !c.History.Current().Equal(snapshot) {
		c.History.Push(nodes, edges)
	}
	c.Logger.Debugf("Saved schema %s (%d nodes, %d edges)", state.SchemaID, len(nodes), len(edges))
	c.notify(Notification{
		Level:    LevelSuccess,
		Message:  MessageSaved,
		SchemaID: state.SchemaID,
		At:       now,
	})
	return nil
}

func (c *Coordinator) notify(n Notification) {
	if c.Notifier != nil {
		c.Notifier.Notify(n)
	}
}

func (c *Coordinator) clock() Clock {
	if c.Clock == nil {
		return RealClock()
	}
	return c.Clock
}

func (c *Coordinator) sanitizerOrDefault() *sanitizer.Sanitizer {
	if c.Sanitizer == nil {
		return sanitizer.NewSanitizer()
	}
	return c.Sanitizer
}

func (c *Coordinator) quietPeriod() time.Duration {
	if c.QuietPeriod <= 0 {
		return DefaultQuietPeriod
	}
	return c.QuietPeriod
}

func (c *Coordinator) saveTimeout() time.Duration {
	if c.SaveTimeout <= 0 {
		return DefaultSaveTimeout
	}
	return c.SaveTimeout
}
