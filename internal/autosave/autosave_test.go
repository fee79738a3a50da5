package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/internal/history"
	"github.com/vitebski/schema-designer/internal/sanitizer"
	"github.com/vitebski/schema-designer/pkg/models"
)

type fakeSource struct {
	mu    sync.Mutex
	state State
}

func (f *fakeSource) SaveState() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSource) setLabels(labels ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Graph = tables(labels...)
}

type recordingWriter struct {
	mu      sync.Mutex
	records []*models.SchemaRecord
	err     error
	started chan struct{}
	release chan struct{}
}

func (w *recordingWriter) WriteSchema(ctx context.Context, ownerID, schemaID string, record *models.SchemaRecord) error {
	if w.started != nil {
		w.started <- struct{}{}
	}
	if w.release != nil {
		<-w.release
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.records = append(w.records, record)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}

func (w *recordingWriter) last() *models.SchemaRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records[len(w.records)-1]
}

func tables(labels ...string) models.Graph {
	g := models.Graph{Nodes: []models.Node{}, Edges: []models.Edge{}}
	for _, label := range labels {
		g.Nodes = append(g.Nodes, models.Node{
			ID:   label,
			Type: models.KindTable,
			Data: models.NodeData{Label: label},
		})
	}
	return g
}

type fixture struct {
	source   *fakeSource
	writer   *recordingWriter
	stack    *history.Stack
	clock    *ManualClock
	notes    []Notification
	notesMu  sync.Mutex
	coord    *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests

	f := &fixture{
		source: &fakeSource{state: State{OwnerID: "u1", SchemaID: "s1", Name: "Shop"}},
		writer: &recordingWriter{},
		stack:  history.NewStack(sanitizer.SanitizeGraph(tables())),
		clock:  NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	f.coord = NewCoordinator(f.source, f.writer, f.stack, NotifierFunc(func(n Notification) {
		f.notesMu.Lock()
		defer f.notesMu.Unlock()
		f.notes = append(f.notes, n)
	}), logger)
	f.coord.Clock = f.clock
	return f
}

func (f *fixture) notifications() []Notification {
	f.notesMu.Lock()
	defer f.notesMu.Unlock()
	return append([]Notification(nil), f.notes...)
}

func TestDebounceCoalescesBurst(t *testing.T) {
	f := newFixture(t)

	f.source.setLabels("users")
	f.coord.Changed()
	f.clock.Advance(500 * time.Millisecond)

	f.source.setLabels("users", "orders")
	f.coord.Changed()
	f.clock.Advance(500 * time.Millisecond)

	f.source.setLabels("users", "orders", "items")
	f.coord.Changed()

	f.clock.Advance(1999 * time.Millisecond)
	if f.writer.count() != 0 {
		t.Fatalf("Expected no save before the quiet period elapsed, got %d", f.writer.count())
	}

	f.clock.Advance(time.Millisecond)
	if f.writer.count() != 1 {
		t.Fatalf("Expected exactly one save, got %d", f.writer.count())
	}

	record := f.writer.last()
	if len(record.Nodes) != 3 {
		t.Errorf("Expected the state of the last edit (3 nodes), got %d", len(record.Nodes))
	}
	if !record.LastModified.Equal(time.Date(2024, 1, 1, 0, 0, 3, 0, time.UTC)) {
		t.Errorf("Expected save at 3000ms, got %s", record.LastModified)
	}
	if f.clock.Pending() != 0 {
		t.Errorf("Expected no leftover timers, got %d", f.clock.Pending())
	}

	f.clock.Advance(10 * time.Second)
	if f.writer.count() != 1 {
		t.Errorf("Expected no further saves, got %d", f.writer.count())
	}
}

func TestSuccessfulSavePushesHistory(t *testing.T) {
	f := newFixture(t)

	f.source.setLabels("users")
	f.coord.Changed()
	f.clock.Advance(DefaultQuietPeriod)

	if f.stack.Len() != 2 || f.stack.Position() != 1 {
		t.Fatalf("Expected history length 2 at position 1, got %d at %d", f.stack.Len(), f.stack.Position())
	}
	if !f.stack.CanUndo() {
		t.Error("Expected undo to be available after a confirmed save")
	}

	record := f.writer.last()
	if record.OwnerID != "u1" || record.LastModifiedBy != "u1" || record.Name != "Shop" {
		t.Errorf("Unexpected record metadata: %+v", record)
	}
	if record.Nodes[0].Style["backgroundColor"] != sanitizer.DefaultTableBackground {
		t.Error("Expected the written record to be sanitized")
	}

	notes := f.notifications()
	if len(notes) != 1 || notes[0].Level != LevelSuccess || notes[0].Message != MessageSaved {
		t.Errorf("Expected one success notification, got %+v", notes)
	}
}

func TestFailedSaveLeavesHistoryUntouched(t *testing.T) {
	f := newFixture(t)
	f.writer.err = errors.New("store unavailable")

	lengthBefore := f.stack.Len()
	positionBefore := f.stack.Position()

	f.source.setLabels("users")
	f.coord.Changed()
	f.clock.Advance(DefaultQuietPeriod)

	if f.stack.Len() != lengthBefore || f.stack.Position() != positionBefore {
		t.Errorf("Expected history unchanged, got length %d position %d", f.stack.Len(), f.stack.Position())
	}

	notes := f.notifications()
	if len(notes) != 1 || notes[0].Level != LevelError || notes[0].Message != MessageSaveFailed {
		t.Fatalf("Expected one failure notification, got %+v", notes)
	}
	if notes[0].Error != "store unavailable" {
		t.Errorf("Expected error detail, got %q", notes[0].Error)
	}

	// The next cycle retries
	f.writer.mu.Lock()
	f.writer.err = nil
	f.writer.mu.Unlock()
	f.coord.Changed()
	f.clock.Advance(DefaultQuietPeriod)

	if f.stack.Len() != lengthBefore+1 {
		t.Errorf("Expected retry to push history, got length %d", f.stack.Len())
	}
}

func TestSaveWithoutOwnerIsNoop(t *testing.T) {
	f := newFixture(t)
	f.source.state.OwnerID = ""

	f.source.setLabels("users")
	f.coord.Changed()
	f.clock.Advance(DefaultQuietPeriod)

	if f.writer.count() != 0 {
		t.Errorf("Expected no write without an owner, got %d", f.writer.count())
	}
	if f.stack.Len() != 1 {
		t.Errorf("Expected history unchanged, got %d", f.stack.Len())
	}
	if len(f.notifications()) != 0 {
		t.Errorf("Expected no notification, got %+v", f.notifications())
	}
}

func TestOverlappingTriggerIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.writer.started = make(chan struct{}, 1)
	f.writer.release = make(chan struct{})

	f.source.setLabels("users")

	done := make(chan error, 1)
	go func() {
		done <- f.coord.SaveNow(context.Background())
	}()
	<-f.writer.started

	if !f.coord.InFlight() {
		t.Fatal("Expected a save to be in flight")
	}

	f.source.setLabels("users", "orders")
	f.coord.Changed()
	f.clock.Advance(DefaultQuietPeriod)

	if err := f.coord.SaveNow(context.Background()); !errors.Is(err, ErrSaveInFlight) {
		t.Errorf("Expected ErrSaveInFlight, got %v", err)
	}

	close(f.writer.release)
	if err := <-done; err != nil {
		t.Fatalf("Unexpected error from first save: %v", err)
	}

	if f.writer.count() != 1 {
		t.Errorf("Expected the overlapping trigger to be skipped, got %d writes", f.writer.count())
	}
	if f.coord.InFlight() {
		t.Error("Expected in-flight flag to be cleared")
	}
	if !f.coord.Pending() {
		t.Fatal("Expected the skipped trigger to restart the quiet period")
	}

	f.clock.Advance(DefaultQuietPeriod)

	if f.writer.count() != 2 {
		t.Fatalf("Expected the settled state to be saved, got %d writes", f.writer.count())
	}
	if n := len(f.writer.last().Nodes); n != 2 {
		t.Errorf("Expected the last write to hold 2 nodes, got %d", n)
	}
	if f.stack.Len() != 3 {
		t.Errorf("Expected both saves in history, got length %d", f.stack.Len())
	}

	f.clock.Advance(10 * DefaultQuietPeriod)
	if f.writer.count() != 2 {
		t.Errorf("Expected no further writes once settled, got %d", f.writer.count())
	}
}

func TestSaveNowDuringSaveKeepsPendingChange(t *testing.T) {
	f := newFixture(t)
	f.writer.started = make(chan struct{}, 1)
	f.writer.release = make(chan struct{})

	f.source.setLabels("users")

	done := make(chan error, 1)
	go func() {
		done <- f.coord.SaveNow(context.Background())
	}()
	<-f.writer.started

	f.source.setLabels("users", "orders")
	f.coord.Changed()

	if err := f.coord.SaveNow(context.Background()); !errors.Is(err, ErrSaveInFlight) {
		t.Fatalf("Expected ErrSaveInFlight, got %v", err)
	}
	if !f.coord.Pending() {
		t.Error("Expected the pending change to stay scheduled")
	}

	close(f.writer.release)
	if err := <-done; err != nil {
		t.Fatalf("Unexpected error from first save: %v", err)
	}

	f.clock.Advance(DefaultQuietPeriod)

	if f.writer.count() != 2 {
		t.Fatalf("Expected the pending change to be saved, got %d writes", f.writer.count())
	}
	if n := len(f.writer.last().Nodes); n != 2 {
		t.Errorf("Expected the last write to hold 2 nodes, got %d", n)
	}
}

func TestFlushWaitsForRunningSave(t *testing.T) {
	f := newFixture(t)
	f.writer.started = make(chan struct{}, 1)
	f.writer.release = make(chan struct{})

	f.source.setLabels("users")

	done := make(chan error, 1)
	go func() {
		done <- f.coord.SaveNow(context.Background())
	}()
	<-f.writer.started

	f.source.setLabels("users", "orders")
	f.coord.Changed()

	flushed := make(chan error, 1)
	go func() {
		flushed <- f.coord.Flush(context.Background())
	}()

	close(f.writer.release)
	if err := <-done; err != nil {
		t.Fatalf("Unexpected error from first save: %v", err)
	}
	if err := <-flushed; err != nil {
		t.Fatalf("Unexpected error from flush: %v", err)
	}

	if f.writer.count() != 2 {
		t.Fatalf("Expected flush to write the pending change, got %d writes", f.writer.count())
	}
	if n := len(f.writer.last().Nodes); n != 2 {
		t.Errorf("Expected the last write to hold 2 nodes, got %d", n)
	}
	if f.coord.Pending() {
		t.Error("Expected nothing pending after flush")
	}
	if f.clock.Pending() != 0 {
		t.Errorf("Expected flush to cancel the quiet period, got %d timers", f.clock.Pending())
	}
}

func TestFlushWithoutChangesDoesNotWrite(t *testing.T) {
	f := newFixture(t)

	if err := f.coord.Flush(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if f.writer.count() != 0 {
		t.Errorf("Expected no write, got %d", f.writer.count())
	}
}

func TestSavingCurrentSnapshotKeepsRedo(t *testing.T) {
	f := newFixture(t)

	f.source.setLabels("users")
	f.coord.Changed()
	f.clock.Advance(DefaultQuietPeriod)

	undone := f.stack.Undo()
	f.source.mu.Lock()
	f.source.state.Graph = undone
	f.source.mu.Unlock()

	f.coord.Changed()
	f.clock.Advance(DefaultQuietPeriod)

	if f.writer.count() != 2 {
		t.Fatalf("Expected the undone state to be saved, got %d writes", f.writer.count())
	}
	if !f.stack.CanRedo() {
		t.Error("Expected redo to survive saving the undone state")
	}
}

func TestStopCancelsPendingSave(t *testing.T) {
	f := newFixture(t)

	f.source.setLabels("users")
	f.coord.Changed()
	if !f.coord.Pending() {
		t.Fatal("Expected a pending quiet period")
	}

	f.coord.Stop()
	f.coord.Changed()
	f.clock.Advance(DefaultQuietPeriod)

	if f.writer.count() != 0 {
		t.Errorf("Expected no save after Stop, got %d", f.writer.count())
	}
}

func TestSaveNowCancelsTimer(t *testing.T) {
	f := newFixture(t)

	f.source.setLabels("users")
	f.coord.Changed()

	if err := f.coord.SaveNow(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	f.clock.Advance(DefaultQuietPeriod)

	if f.writer.count() != 1 {
		t.Errorf("Expected exactly one save, got %d", f.writer.count())
	}
}

func TestMissingNameUsesDefault(t *testing.T) {
	f := newFixture(t)
	f.source.state.Name = ""

	if err := f.coord.SaveNow(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if f.writer.last().Name != models.DefaultSchemaName {
		t.Errorf("Expected default name, got %q", f.writer.last().Name)
	}
}
