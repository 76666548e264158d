package approval_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpislabs/draftflow/pkg/approval"
	"github.com/mpislabs/draftflow/pkg/audit"
	"github.com/mpislabs/draftflow/pkg/commit"
	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/document"
	"github.com/mpislabs/draftflow/pkg/lifecycle"
	"github.com/mpislabs/draftflow/pkg/storage/storagetest"
)

const doc1 = `{"variants":[{"variant_no":1,"title":"Hope","text":"Hope is a person."}]}`

type fixture struct {
	machine *lifecycle.Machine
	store   core.Storage
	svc     *approval.Service
	entity  *core.Entity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storagetest.New(t)
	entity := &core.Entity{Name: "Tim", Slug: "tim"}
	require.NoError(t, store.CreateEntity(context.Background(), entity))
	m := lifecycle.NewMachine(store, audit.NewRecorder(store))
	return &fixture{
		machine: m,
		store:   store,
		svc:     approval.NewService(m, lifecycle.DefaultRegistry(), commit.NewCoordinator(m)),
		entity:  entity,
	}
}

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

func replaceText(text string) []document.Edit {
	v, _ := json.Marshal(text)
	return []document.Edit{{Path: "variants[0].text", Op: document.OpReplace, Value: v}}
}

// ─────────────────────────────────────────────────────────────────────────────
// Apply
// ─────────────────────────────────────────────────────────────────────────────

func TestApply_WritesNextDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.awaiting(t)

	draft, err := f.svc.Apply(ctx, job.ID, 1, replaceText("Hope does not disappoint."))
	require.NoError(t, err)
	assert.Equal(t, 2, draft.DraftNo)
	assert.JSONEq(t, `{"variants":[{"variant_no":1,"title":"Hope","text":"Hope does not disappoint."}]}`, string(draft.Document))
	assert.Contains(t, draft.ReviewPrompt, "draft 2")

	prev, err := f.store.GetDraft(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.JSONEq(t, doc1, string(prev.Document), "drafts are immutable")

	cur, err := f.svc.Current(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cur.DraftNo)

	got, err := f.machine.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusAwaitingApproval, got.Status)
}

func TestApply_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		base  int
		edits []document.Edit
		code  core.Code
	}{
		{"stale base", 2, replaceText("x"), core.CodeDraftConflict},
		{"missing path", 1, []document.Edit{{Path: "variants[5].text", Op: document.OpReplace, Value: json.RawMessage(`"x"`)}}, core.CodeEditPathNotFound},
		{"schema violation", 1, []document.Edit{{Path: "variants[0]", Op: document.OpRemove}}, core.CodeInvalidEdit},
		{"bad op", 1, []document.Edit{{Path: "variants", Op: "move"}}, core.CodeInvalidEdit},
		{"no edits", 1, nil, core.CodeInvalidEdit},
		{"one bad edit aborts all", 1, append(replaceText("fine"), document.Edit{Path: "nope.deep", Op: document.OpReplace, Value: json.RawMessage(`1`)}), core.CodeEditPathNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			job := f.awaiting(t)

			_, err := f.svc.Apply(ctx, job.ID, tt.base, tt.edits)
			require.Error(t, err)
			assert.Equal(t, tt.code, core.CodeOf(err), err.Error())

			drafts, err := f.store.ListDrafts(ctx, job.ID)
			require.NoError(t, err)
			assert.Len(t, drafts, 1)
		})
	}
}

func TestApply_TerminalJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.awaiting(t)
	require.NoError(t, f.machine.Fail(ctx, job.ID, "cancelled"))

	_, err := f.svc.Apply(ctx, job.ID, 1, replaceText("x"))
	assert.Equal(t, core.CodeJobTerminal, core.CodeOf(err))
}

func TestApply_UnknownJob(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Apply(context.Background(), "missing", 1, replaceText("x"))
	assert.Equal(t, core.CodeJobNotFound, core.CodeOf(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// Confirm
// ─────────────────────────────────────────────────────────────────────────────

func TestConfirm_StaleDraftAfterEdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.awaiting(t)

	_, err := f.svc.Apply(ctx, job.ID, 1, replaceText("edited"))
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, job.ID, 1)
	assert.Equal(t, core.CodeDraftConflict, core.CodeOf(err))

	res, err := f.svc.Confirm(ctx, job.ID, 2)
	require.NoError(t, err)
	assert.Contains(t, string(res.Version.Document), "edited")
	assert.True(t, res.Job.Committed())

	_, err = f.svc.Apply(ctx, job.ID, 2, replaceText("late"))
	assert.Equal(t, core.CodeJobTerminal, core.CodeOf(err))
}

func TestConfirm_BeforeDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := &core.Job{Kind: core.KindContent, TargetName: "Tim", TargetEntityID: f.entity.ID}
	require.NoError(t, f.machine.Create(ctx, job))

	_, err := f.svc.Confirm(ctx, job.ID, 1)
	assert.Equal(t, core.CodeStaleTransition, core.CodeOf(err))

	_, err = f.svc.Current(ctx, job.ID)
	assert.Equal(t, core.CodeNotFound, core.CodeOf(err))
}
