package dataset

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/krx-sync/internal/model"
	"github.com/sells-group/krx-sync/internal/resilience"
)

// mockDataset is a test double for Dataset.
type mockDataset struct {
	name   string
	phase  Phase
	result *model.SyncResult
	err    error
	called bool
}

func (m *mockDataset) Name() string  { return m.name }
func (m *mockDataset) Table() string { return "krx.test_" + m.name }
func (m *mockDataset) Phase() Phase  { return m.phase }

func (m *mockDataset) Sync(_ context.Context, _ Env) (*model.SyncResult, error) {
	m.called = true
	return m.result, m.err
}

func newMockRegistry(datasets ...*mockDataset) *Registry {
	r := &Registry{datasets: make(map[string]Dataset)}
	for _, d := range datasets {
		r.Register(d)
	}
	return r
}

func TestNewRegistry_Order(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"sector", "ticker", "price", "foreign"}, r.AllNames())
	assert.Len(t, r.All(), 4)

	d, err := r.Get("price")
	require.NoError(t, err)
	assert.Equal(t, "krx.stock_price", d.Table())
	assert.Equal(t, PhasePrice, d.Phase())

	_, err = r.Get("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid: sector, ticker, price, foreign")
}

func TestRegistry_Select(t *testing.T) {
	r := NewRegistry()

	catalog := PhaseCatalog
	ds, err := r.Select(&catalog, nil)
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "sector", ds[0].Name())
	assert.Equal(t, "ticker", ds[1].Name())

	ds, err = r.Select(nil, []string{"foreign", "sector"})
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "sector", ds[0].Name(), "registration order wins over argument order")

	ds, err = r.Select(&catalog, []string{"price"})
	require.NoError(t, err)
	assert.Empty(t, ds)

	_, err = r.Select(nil, []string{"bogus"})
	assert.Error(t, err)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := newMockRegistry(&mockDataset{name: "a", phase: PhaseCatalog})
	r.Register(&mockDataset{name: "a", phase: PhasePrice})

	assert.Equal(t, []string{"a"}, r.AllNames())
	d, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, PhasePrice, d.Phase())
}

func TestPhase(t *testing.T) {
	assert.Equal(t, "catalog", PhaseCatalog.String())
	assert.Equal(t, "price", PhasePrice.String())
	assert.Equal(t, "unknown", Phase(0).String())

	p, err := ParsePhase("price")
	require.NoError(t, err)
	assert.Equal(t, PhasePrice, p)

	_, err = ParsePhase("weekly")
	assert.Error(t, err)
}

func TestEngine_RunAll(t *testing.T) {
	st := newTestStore(t)
	a := &mockDataset{name: "a", phase: PhaseCatalog, result: &model.SyncResult{RowsSynced: 10}}
	b := &mockDataset{name: "b", phase: PhasePrice, result: &model.SyncResult{RowsSynced: 5, Metadata: map[string]any{"failed": 1}}}

	eng := NewEngine(newMockRegistry(a, b), newTestEnv(t, st, nil))
	require.NoError(t, eng.Run(context.Background(), RunOpts{}))

	assert.True(t, a.called)
	assert.True(t, b.called)

	runs, err := st.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, model.RunStatusComplete, r.Status)
		assert.Equal(t, "test-run", r.Metadata["run_id"])
		assert.Equal(t, "20240103", r.Metadata["ref_dt"])
	}
}

func TestEngine_RunPhaseFilter(t *testing.T) {
	st := newTestStore(t)
	a := &mockDataset{name: "a", phase: PhaseCatalog, result: &model.SyncResult{}}
	b := &mockDataset{name: "b", phase: PhasePrice, result: &model.SyncResult{}}

	price := PhasePrice
	eng := NewEngine(newMockRegistry(a, b), newTestEnv(t, st, nil))
	require.NoError(t, eng.Run(context.Background(), RunOpts{Phase: &price}))

	assert.False(t, a.called)
	assert.True(t, b.called)
}

func TestEngine_EntityScopedFailureContinues(t *testing.T) {
	st := newTestStore(t)
	a := &mockDataset{name: "a", phase: PhaseCatalog, err: &resilience.SchemaMismatchError{Schema: "sector", Column: "업종명"}}
	b := &mockDataset{name: "b", phase: PhasePrice, result: &model.SyncResult{RowsSynced: 3}}

	eng := NewEngine(newMockRegistry(a, b), newTestEnv(t, st, nil))
	require.NoError(t, eng.Run(context.Background(), RunOpts{}))
	assert.True(t, b.called)

	runs, err := st.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	status := map[string]model.RunStatus{}
	for _, r := range runs {
		status[r.Dataset] = r.Status
	}
	assert.Equal(t, model.RunStatusFailed, status["a"])
	assert.Equal(t, model.RunStatusComplete, status["b"])
}

func TestEngine_RunScopedFailureAborts(t *testing.T) {
	st := newTestStore(t)
	a := &mockDataset{name: "a", phase: PhaseCatalog, err: &resilience.AccessDeniedError{Target: "MDCSTAT03901"}}
	b := &mockDataset{name: "b", phase: PhasePrice, result: &model.SyncResult{}}

	eng := NewEngine(newMockRegistry(a, b), newTestEnv(t, st, nil))
	err := eng.Run(context.Background(), RunOpts{})
	require.Error(t, err)

	var denied *resilience.AccessDeniedError
	assert.True(t, errors.As(err, &denied))
	assert.False(t, b.called)

	runs, err := st.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "access denied")
}

func TestEngine_NoDatasets(t *testing.T) {
	st := newTestStore(t)
	eng := NewEngine(newMockRegistry(), newTestEnv(t, st, nil))
	require.NoError(t, eng.Run(context.Background(), RunOpts{}))
}

func TestEngine_UnknownDataset(t *testing.T) {
	st := newTestStore(t)
	eng := NewEngine(newMockRegistry(&mockDataset{name: "a"}), newTestEnv(t, st, nil))
	assert.Error(t, eng.Run(context.Background(), RunOpts{Datasets: []string{"zzz"}}))
}

func TestEngine_CancelledBeforeStart(t *testing.T) {
	st := newTestStore(t)
	a := &mockDataset{name: "a", phase: PhaseCatalog, result: &model.SyncResult{}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := NewEngine(newMockRegistry(a), newTestEnv(t, st, nil))
	err := eng.Run(ctx, RunOpts{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, a.called)
}
