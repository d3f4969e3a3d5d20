package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubrec/internal/records"
	"pubrec/pkg/platform/sentinel"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubFeed serves a fixed batch, or a fetch error.
type stubFeed struct {
	name       string
	sequential bool
	rows       []Row
	fetchErr   error
}

func (f *stubFeed) Name() string               { return f.name }
func (f *stubFeed) SystemRef() string          { return f.name + "-ref" }
func (f *stubFeed) Schema() records.SchemaName { return records.SchemaTicket }
func (f *stubFeed) Sequential() bool           { return f.sequential }
func (f *stubFeed) Fetch(context.Context) ([]Row, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.rows, nil
}

// stubHandler fails rows whose "fail" column is set, panics on "panic", and
// records the order rows arrived in.
type stubHandler struct {
	mu      sync.Mutex
	seen    []string
	creates int
	updates int
}

func (h *stubHandler) Transform(row Row) (*records.MasterRecord, error) {
	h.mu.Lock()
	h.seen = append(h.seen, row["id"])
	h.mu.Unlock()

	if row["panic"] != "" {
		panic(row["panic"])
	}
	if row["fail"] != "" {
		return nil, errors.New(row["fail"])
	}
	return &records.MasterRecord{SchemaName: records.SchemaTicket}, nil
}

func (h *stubHandler) FindExisting(context.Context, *records.MasterRecord) (*records.MasterRecord, error) {
	return nil, nil
}

func (h *stubHandler) Create(context.Context, *records.MasterRecord) error {
	h.mu.Lock()
	h.creates++
	h.mu.Unlock()
	return nil
}

func (h *stubHandler) Update(context.Context, *records.MasterRecord, *records.MasterRecord) error {
	h.mu.Lock()
	h.updates++
	h.mu.Unlock()
	return nil
}

func newTestRunner(t *testing.T, feed Feed, handler RecordHandler, batchSize int) (*Runner, *MemoryTaskStore) {
	t.Helper()
	registry := NewRegistry()
	require.NoError(t, registry.Register(Registration{Feed: feed, Handler: handler}))
	tasks := NewMemoryTaskStore()
	return NewRunner(tasks, registry, nil, discardLogger(), nil, batchSize), tasks
}

func TestRun_RowFailureDoesNotAbortBatch(t *testing.T) {
	feed := &stubFeed{name: "stub", rows: []Row{
		{"id": "1"},
		{"id": "2", "fail": "malformed row"},
		{"id": "3"},
		{"id": "4"},
	}}
	handler := &stubHandler{}
	runner, _ := newTestRunner(t, feed, handler, 2)

	task, err := runner.Run(context.Background(), "stub")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, 4, task.ItemTotal)
	assert.Equal(t, 3, task.ItemsProcessed)
	require.Len(t, task.IndividualRecordStatus, 1)
	assert.Equal(t, "row 1: transform failed", task.IndividualRecordStatus[0].Message)
	assert.Equal(t, "malformed row", task.IndividualRecordStatus[0].Error)
	assert.Equal(t, 3, handler.creates)
}

func TestRun_PanicIsIsolatedToItsRow(t *testing.T) {
	feed := &stubFeed{name: "stub", rows: []Row{
		{"id": "1"},
		{"id": "2", "panic": "boom"},
		{"id": "3"},
	}}
	runner, _ := newTestRunner(t, feed, &stubHandler{}, 3)

	task, err := runner.Run(context.Background(), "stub")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, 2, task.ItemsProcessed)
	require.Len(t, task.IndividualRecordStatus, 1)
	assert.Contains(t, task.IndividualRecordStatus[0].Message, "panicked")
	assert.Contains(t, task.IndividualRecordStatus[0].Error, "boom")
}

func TestRun_SequentialFeedPreservesRowOrder(t *testing.T) {
	feed := &stubFeed{name: "stub", sequential: true, rows: []Row{
		{"id": "a"}, {"id": "b"}, {"id": "c"}, {"id": "d"},
	}}
	handler := &stubHandler{}
	runner, _ := newTestRunner(t, feed, handler, 2)

	task, err := runner.Run(context.Background(), "stub")
	require.NoError(t, err)

	assert.Equal(t, 4, task.ItemsProcessed)
	assert.Equal(t, []string{"a", "b", "c", "d"}, handler.seen)
}

func TestRun_AuthErrorIsTerminalStatus(t *testing.T) {
	feed := &stubFeed{name: "stub", fetchErr: fmt.Errorf("%w: endpoint returned 401", ErrAuth)}
	runner, tasks := newTestRunner(t, feed, &stubHandler{}, 2)

	task, err := runner.Run(context.Background(), "stub")
	require.Error(t, err)
	require.NotNil(t, task)
	assert.Equal(t, StatusAuthError, task.Status)
	assert.False(t, task.FinishedAt.IsZero())

	// The terminal status is persisted, not just returned.
	stored, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAuthError, stored.Status)
}

func TestRun_FetchFailureIsNotAuthError(t *testing.T) {
	feed := &stubFeed{name: "stub", fetchErr: errors.New("connection refused")}
	runner, tasks := newTestRunner(t, feed, &stubHandler{}, 2)

	task, err := runner.Run(context.Background(), "stub")
	require.Error(t, err)
	require.NotNil(t, task)

	// The task stays Running in the audit store: the run died, it did not
	// complete and it was not an auth rejection.
	stored, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, stored.Status)
}

func TestRun_UnknownFeed(t *testing.T) {
	runner, _ := newTestRunner(t, &stubFeed{name: "stub"}, &stubHandler{}, 2)

	_, err := runner.Run(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown feed")
}

// resettableHandler carries per-run state the runner must clear.
type resettableHandler struct {
	stubHandler
	beginRuns int
}

func (h *resettableHandler) BeginRun() {
	h.beginRuns++
}

func TestRun_ResetsHandlerStateEveryRun(t *testing.T) {
	feed := &stubFeed{name: "stub", sequential: true, rows: []Row{{"id": "1"}}}
	handler := &resettableHandler{}
	runner, _ := newTestRunner(t, feed, handler, 2)

	_, err := runner.Run(context.Background(), "stub")
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), "stub")
	require.NoError(t, err)

	assert.Equal(t, 2, handler.beginRuns)
}

type deniedLocker struct{}

func (deniedLocker) Acquire(context.Context, string) (func(), error) {
	return nil, fmt.Errorf("run lock: %w", sentinel.ErrLocked)
}

func TestRun_LockHeldAbortsBeforeTaskCreation(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(Registration{Feed: &stubFeed{name: "stub"}, Handler: &stubHandler{}}))
	runner := NewRunner(NewMemoryTaskStore(), registry, deniedLocker{}, discardLogger(), nil, 2)

	task, err := runner.Run(context.Background(), "stub")
	require.Error(t, err)
	assert.Nil(t, task)
	assert.ErrorIs(t, err, sentinel.ErrLocked)
}

func TestRun_EmptyBatchCompletes(t *testing.T) {
	feed := &stubFeed{name: "stub"}
	runner, _ := newTestRunner(t, feed, &stubHandler{}, 2)

	task, err := runner.Run(context.Background(), "stub")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.Zero(t, task.ItemTotal)
	assert.Zero(t, task.ItemsProcessed)
	assert.Empty(t, task.IndividualRecordStatus)
}
