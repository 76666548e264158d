package commit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpislabs/draftflow/pkg/audit"
	"github.com/mpislabs/draftflow/pkg/commit"
	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/lifecycle"
	"github.com/mpislabs/draftflow/pkg/memory"
	"github.com/mpislabs/draftflow/pkg/storage/storagetest"
)

const doc1 = `{"variants":[{"variant_no":1,"text":"Hope is a person."}]}`

type fakeIndex struct {
	mu      sync.Mutex
	err     error
	block   bool
	hook    func()
	entries []memory.Entry
}

func (f *fakeIndex) IndexVersion(ctx context.Context, e memory.Entry) error {
	if f.hook != nil {
		f.hook()
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeIndex) UpsertChunks(context.Context, []memory.Chunk) error { return nil }

type fakeExporter struct {
	err      error
	exported []*core.EntityVersion
}

func (f *fakeExporter) Export(_ context.Context, _ *core.Entity, v *core.EntityVersion) error {
	f.exported = append(f.exported, v)
	return f.err
}

type fixture struct {
	machine *lifecycle.Machine
	store   core.Storage
	entity  *core.Entity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storagetest.New(t)
	entity := &core.Entity{Name: "Tim", Slug: "tim"}
	require.NoError(t, store.CreateEntity(context.Background(), entity))
	return &fixture{
		machine: lifecycle.NewMachine(store, audit.NewRecorder(store)),
		store:   store,
		entity:  entity,
	}
}

// awaiting creates a content job with draft #1 awaiting approval.
func (f *fixture) awaiting(t *testing.T) *core.Job {
	t.Helper()
	ctx := context.Background()
	job := &core.Job{Kind: core.KindContent, TargetName: "Tim", TargetEntityID: f.entity.ID}
	require.NoError(t, f.machine.Create(ctx, job))
	require.NoError(t, f.machine.Advance(ctx, job.ID, core.StatusQueued, core.StatusCollecting))
	require.NoError(t, f.machine.Advance(ctx, job.ID, core.StatusCollecting, core.StatusProcessing))
	require.NoError(t, f.store.CreateFirstDraft(ctx, "", &core.Draft{JobID: job.ID, Document: []byte(doc1)}))
	return job
}

func (f *fixture) job(t *testing.T, id string) *core.Job {
	t.Helper()
	job, err := f.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func (f *fixture) versions(t *testing.T) []*core.EntityVersion {
	t.Helper()
	vs, err := f.store.ListVersions(context.Background(), f.entity.ID)
	require.NoError(t, err)
	return vs
}

// ─────────────────────────────────────────────────────────────────────────────
// Commit
// ─────────────────────────────────────────────────────────────────────────────

func TestCommit_Indexed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.awaiting(t)
	idx := &fakeIndex{}
	events := f.machine.Events()
	defer f.machine.Unsubscribe(events)

	c := commit.NewCoordinator(f.machine, commit.WithIndex(idx))
	res, err := c.Commit(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, 1, res.Version.VersionNo)
	assert.Equal(t, core.StatusCommitted, res.Job.Status)

	got := f.job(t, job.ID)
	assert.Equal(t, core.StatusCommitted, got.Status)
	require.NotNil(t, got.ResultEntityID)
	assert.Equal(t, f.entity.ID, *got.ResultEntityID)
	assert.Empty(t, got.LockedBy)

	entity, err := f.store.GetEntity(ctx, f.entity.ID)
	require.NoError(t, err)
	require.NotNil(t, entity.ActiveVersionID)
	assert.Equal(t, res.Version.ID, *entity.ActiveVersionID)

	vs := f.versions(t)
	require.Len(t, vs, 1)
	assert.NotNil(t, vs[0].IndexedAt)
	assert.JSONEq(t, doc1, string(vs[0].Document))

	require.Len(t, idx.entries, 1)
	assert.Equal(t, res.Version.ID, idx.entries[0].VersionID)
	require.Len(t, idx.entries[0].Sections, 1)
	assert.Equal(t, "variants", idx.entries[0].Sections[0].Key)

	trail, err := f.store.ListAudit(ctx, job.ID)
	require.NoError(t, err)
	var types []string
	for _, e := range trail {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, core.AuditEntityCommitted)
	assert.Contains(t, types, core.AuditEmbeddingsUpserted)

	jc := waitCommitted(t, events)
	assert.Equal(t, res.Version.ID, jc.VersionID)
	assert.False(t, jc.Degraded)
}

func waitCommitted(t *testing.T, events <-chan core.Event) *core.JobCommitted {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case e := <-events:
			if jc, ok := e.(*core.JobCommitted); ok {
				return jc
			}
		case <-timeout:
			t.Fatal("no JobCommitted event")
			return nil
		}
	}
}

func TestCommit_DegradedThenBackfill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.awaiting(t)
	idx := &fakeIndex{err: errors.New("connection refused")}

	c := commit.NewCoordinator(f.machine, commit.WithIndex(idx))
	res, err := c.Commit(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, core.StatusCommittedDegraded, f.job(t, job.ID).Status)
	assert.Nil(t, f.versions(t)[0].IndexedAt)

	idx.err = nil
	n, err := c.Backfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotNil(t, f.versions(t)[0].IndexedAt)
	assert.Equal(t, core.StatusCommittedDegraded, f.job(t, job.ID).Status, "backfill never rewrites terminal jobs")

	n, err = c.Backfill(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCommit_NoIndexIsDegraded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.awaiting(t)

	c := commit.NewCoordinator(f.machine)
	res, err := c.Commit(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.True(t, res.Degraded)

	n, err := c.Backfill(ctx)
	assert.ErrorIs(t, err, memory.ErrUnavailable)
	assert.Zero(t, n)
}

func TestCommit_IndexTimeout(t *testing.T) {
	f := newFixture(t)
	job := f.awaiting(t)

	c := commit.NewCoordinator(f.machine,
		commit.WithIndex(&fakeIndex{block: true}),
		commit.WithIndexTimeout(20*time.Millisecond))
	res, err := c.Commit(context.Background(), job.ID, 1)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, core.StatusCommittedDegraded, f.job(t, job.ID).Status)
}

func TestCommit_StaleDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.awaiting(t)
	require.NoError(t, f.store.AppendDraft(ctx, 1, &core.Draft{JobID: job.ID, Document: []byte(doc1)}))

	c := commit.NewCoordinator(f.machine, commit.WithIndex(&fakeIndex{}))
	_, err := c.Commit(ctx, job.ID, 1)
	require.Error(t, err)
	assert.Equal(t, core.CodeDraftConflict, core.CodeOf(err))
	assert.Empty(t, f.versions(t))

	got := f.job(t, job.ID)
	assert.Equal(t, core.StatusAwaitingApproval, got.Status)
	assert.Empty(t, got.LockedBy)

	_, err = c.Commit(ctx, job.ID, 2)
	require.NoError(t, err)
}

func TestCommit_Twice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.awaiting(t)
	c := commit.NewCoordinator(f.machine, commit.WithIndex(&fakeIndex{}))

	_, err := c.Commit(ctx, job.ID, 1)
	require.NoError(t, err)
	_, err = c.Commit(ctx, job.ID, 1)
	assert.Equal(t, core.CodeJobTerminal, core.CodeOf(err))
	assert.Len(t, f.versions(t), 1)
}

func TestCommit_ConcurrentConfirms(t *testing.T) {
	f := newFixture(t)
	job := f.awaiting(t)
	c := commit.NewCoordinator(f.machine, commit.WithIndex(&fakeIndex{}))

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Commit(context.Background(), job.ID, 1)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, f.versions(t), 1)
}

func TestCommit_VersionsAppend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := commit.NewCoordinator(f.machine, commit.WithIndex(&fakeIndex{}))

	first, err := c.Commit(ctx, f.awaiting(t).ID, 1)
	require.NoError(t, err)
	second, err := c.Commit(ctx, f.awaiting(t).ID, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version.VersionNo)
	assert.Equal(t, 2, second.Version.VersionNo)
	require.NotNil(t, second.Entity.ActiveVersionID)
	assert.Equal(t, second.Version.ID, *second.Entity.ActiveVersionID)
}

func TestCommit_FailedDuringIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.awaiting(t)
	idx := &fakeIndex{hook: func() {
		require.NoError(t, f.machine.Fail(ctx, job.ID, "cancelled"))
	}}

	_, err := commit.NewCoordinator(f.machine, commit.WithIndex(idx)).Commit(ctx, job.ID, 1)
	assert.Equal(t, core.CodeJobTerminal, core.CodeOf(err))
	assert.Equal(t, core.StatusFailed, f.job(t, job.ID).Status)
}

func TestCommit_FailedJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.awaiting(t)
	require.NoError(t, f.machine.Fail(ctx, job.ID, "cancelled"))

	_, err := commit.NewCoordinator(f.machine).Commit(ctx, job.ID, 1)
	assert.Equal(t, core.CodeJobTerminal, core.CodeOf(err))
	assert.Empty(t, f.versions(t))
}

func TestCommit_Export(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := &fakeExporter{}
	c := commit.NewCoordinator(f.machine, commit.WithIndex(&fakeIndex{}), commit.WithExporter(exp))

	job := f.awaiting(t)
	_, err := c.Commit(ctx, job.ID, 1)
	require.NoError(t, err)
	require.Len(t, exp.exported, 1)

	trail, err := f.store.ListAudit(ctx, job.ID)
	require.NoError(t, err)
	var types []string
	for _, e := range trail {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, core.AuditExportCompleted)

	exp.err = errors.New("disk full")
	res, err := c.Commit(ctx, f.awaiting(t).ID, 1)
	require.NoError(t, err, "export failures are logged only")
	assert.Equal(t, core.StatusCommitted, res.Job.Status)
}

// ─────────────────────────────────────────────────────────────────────────────
// Recovery
// ─────────────────────────────────────────────────────────────────────────────

func TestRecover_ReleasesClaimWithoutVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.awaiting(t)
	require.NoError(t, f.store.ClaimCommit(ctx, job.ID, 1, "commit:dead", time.Now().Add(-time.Minute)))

	c := commit.NewCoordinator(f.machine, commit.WithIndex(&fakeIndex{}))
	stats, err := c.Recover(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, commit.RecoverStats{Released: 1}, stats)
	assert.Empty(t, f.job(t, job.ID).LockedBy)

	_, err = c.Commit(ctx, job.ID, 1)
	require.NoError(t, err)
}

func TestRecover_FinalizesWrittenVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.awaiting(t)
	require.NoError(t, f.store.ClaimCommit(ctx, job.ID, 1, "commit:dead", time.Now().Add(-time.Minute)))
	require.NoError(t, f.store.WriteVersion(ctx, "commit:dead", &core.EntityVersion{
		EntityID: f.entity.ID, JobID: &job.ID, Kind: job.Kind, Document: []byte(doc1),
	}))

	c := commit.NewCoordinator(f.machine)
	stats, err := c.Recover(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, commit.RecoverStats{Finalized: 1}, stats)

	got := f.job(t, job.ID)
	assert.Equal(t, core.StatusCommittedDegraded, got.Status)
	require.NotNil(t, got.ResultEntityID)
	assert.Equal(t, f.entity.ID, *got.ResultEntityID)
}

func TestRecover_IgnoresLiveClaims(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.awaiting(t)
	require.NoError(t, f.store.ClaimCommit(ctx, job.ID, 1, "commit:live", time.Now().Add(time.Hour)))

	stats, err := commit.NewCoordinator(f.machine).Recover(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, stats)
	assert.Equal(t, "commit:live", f.job(t, job.ID).LockedBy)
}
