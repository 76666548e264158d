package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpislabs/draftflow/pkg/audit"
	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/lifecycle"
	"github.com/mpislabs/draftflow/pkg/storage/storagetest"
)

func newMachine(t *testing.T) (*lifecycle.Machine, core.Storage) {
	t.Helper()
	store := storagetest.New(t)
	return lifecycle.NewMachine(store, audit.NewRecorder(store)), store
}

func createJob(t *testing.T, m *lifecycle.Machine) *core.Job {
	t.Helper()
	job := &core.Job{Kind: core.KindPersona, TargetName: "Tim", TargetEntityID: "e1"}
	require.NoError(t, m.Create(context.Background(), job))
	return job
}

func drain(ch <-chan core.Event) []core.Event {
	var out []core.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func TestMachine_Create(t *testing.T) {
	m, store := newMachine(t)
	job := &core.Job{Kind: core.KindPersona, TargetName: "Tim", TargetEntityID: "e1", Status: core.StatusCommitted, DraftNo: 7}
	require.NoError(t, m.Create(context.Background(), job))

	got, err := m.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusQueued, got.Status, "new jobs always start queued")
	assert.Zero(t, got.DraftNo)

	trail, err := store.ListAudit(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, core.AuditJobCreated, trail[0].Type)
}

func TestMachine_Advance(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t)
	job := createJob(t, m)
	events := m.Events()
	defer m.Unsubscribe(events)

	require.NoError(t, m.Advance(ctx, job.ID, core.StatusQueued, core.StatusCollecting))

	p, err := m.Progress(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, p.Percent)

	got := drain(events)
	require.Len(t, got, 1)
	sc, ok := got[0].(*core.StatusChanged)
	require.True(t, ok)
	assert.Equal(t, core.StatusQueued, sc.From)
	assert.Equal(t, core.StatusCollecting, sc.To)
}

func TestMachine_AdvanceErrors(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t)
	job := createJob(t, m)

	// Not in the table.
	err := m.Advance(ctx, job.ID, core.StatusQueued, core.StatusProcessing)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	// Expected status no longer current.
	require.NoError(t, m.Advance(ctx, job.ID, core.StatusQueued, core.StatusCollecting))
	err = m.Advance(ctx, job.ID, core.StatusQueued, core.StatusCollecting)
	assert.ErrorIs(t, err, core.ErrStaleTransition)

	// Terminal expected status is rejected before storage is read.
	err = m.Advance(ctx, job.ID, core.StatusCommitted, core.StatusFailed)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	assert.Equal(t, core.CodeInvalidTransition, core.CodeOf(err))

	// Job terminal in storage.
	require.NoError(t, m.Fail(ctx, job.ID, "stop"))
	err = m.Advance(ctx, job.ID, core.StatusCollecting, core.StatusProcessing)
	assert.ErrorIs(t, err, core.ErrJobTerminal)

	err = m.Advance(ctx, "missing", core.StatusQueued, core.StatusCollecting)
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestMachine_AdvanceOwned(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(t)
	job := createJob(t, m)

	leased, err := store.LeaseJob(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, job.ID, leased.ID)

	err = m.AdvanceOwned(ctx, job.ID, core.StatusQueued, core.StatusCollecting, "worker-2")
	assert.ErrorIs(t, err, core.ErrLeaseLost)
	require.NoError(t, m.AdvanceOwned(ctx, job.ID, core.StatusQueued, core.StatusCollecting, "worker-1"))
}

func TestMachine_Fail(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(t)
	job := createJob(t, m)
	events := m.Events()
	defer m.Unsubscribe(events)

	require.NoError(t, m.Fail(ctx, job.ID, "backend said api_key=sk-abcdefghijklmnopqrstuvwx"))
	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.NotContains(t, got.Reason, "sk-abcdefghijklmnopqrstuvwx")

	// Idempotent: no second event, no error.
	require.NoError(t, m.Fail(ctx, job.ID, "again"))

	evs := drain(events)
	require.Len(t, evs, 2)
	assert.IsType(t, &core.StatusChanged{}, evs[0])
	assert.IsType(t, &core.JobFailed{}, evs[1])

	trail, err := store.ListAudit(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.AuditJobFailed, trail[len(trail)-1].Type)
}

func TestMachine_FailViaAdvance(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t)
	job := createJob(t, m)

	require.NoError(t, m.Advance(ctx, job.ID, core.StatusQueued, core.StatusFailed))
	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
}

func TestMachine_FailViaAdvanceIsGuarded(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t)
	job := createJob(t, m)
	require.NoError(t, m.Advance(ctx, job.ID, core.StatusQueued, core.StatusCollecting))
	require.NoError(t, m.Advance(ctx, job.ID, core.StatusCollecting, core.StatusProcessing))

	err := m.Advance(ctx, job.ID, core.StatusQueued, core.StatusFailed)
	assert.ErrorIs(t, err, core.ErrStaleTransition)
	assert.Equal(t, core.CodeStaleTransition, core.CodeOf(err))

	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, got.Status)
}

func TestMachine_FailViaAdvanceRequiresOwner(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(t)
	job := createJob(t, m)

	leased, err := store.LeaseJob(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, job.ID, leased.ID)

	err = m.AdvanceOwned(ctx, job.ID, core.StatusQueued, core.StatusFailed, "worker-2")
	assert.ErrorIs(t, err, core.ErrLeaseLost)

	require.NoError(t, m.AdvanceOwned(ctx, job.ID, core.StatusQueued, core.StatusFailed, "worker-1"))
	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Equal(t, "failed by transition", got.Reason)
	assert.Empty(t, got.LockedBy)
	assert.Nil(t, got.LockedUntil)
}

func TestMachine_FailCommitted(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(t)
	job := &core.Job{Kind: core.KindPersona, TargetName: "Tim", TargetEntityID: "e1", Status: core.StatusCommitted}
	require.NoError(t, store.CreateJob(ctx, job))

	err := m.Fail(ctx, job.ID, "late cancel")
	assert.ErrorIs(t, err, core.ErrJobTerminal)
	assert.Equal(t, core.CodeJobTerminal, core.CodeOf(err))
}

func TestMachine_Unsubscribe(t *testing.T) {
	m, _ := newMachine(t)
	ch := m.Events()
	m.Unsubscribe(ch)
	m.Emit(&core.DraftCreated{JobID: "j", DraftNo: 1})
	assert.Empty(t, drain(ch))
}

func TestMachine_EmitDropsWhenFull(t *testing.T) {
	m, _ := newMachine(t)
	ch := m.Events()
	defer m.Unsubscribe(ch)

	for i := 0; i < 150; i++ {
		m.Emit(&core.DraftCreated{JobID: "j", DraftNo: i})
	}
	assert.Len(t, drain(ch), 100)
}
