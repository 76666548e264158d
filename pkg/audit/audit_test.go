package audit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpislabs/draftflow/pkg/audit"
	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/storage/storagetest"
)

func TestRecorder_RecordAndTrail(t *testing.T) {
	ctx := context.Background()
	r := audit.NewRecorder(storagetest.New(t))

	r.Record(ctx, audit.Entry{Type: core.AuditJobCreated, JobID: "j1", Details: map[string]any{"kind": "persona"}})
	r.Record(ctx, audit.Entry{Type: core.AuditEntityCommitted, JobID: "j1", EntityID: "e1"})
	r.Record(ctx, audit.Entry{Type: core.AuditJobCreated, JobID: "j2"})

	trail, err := r.Trail(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, core.AuditJobCreated, trail[0].Type)
	assert.Nil(t, trail[0].EntityID)
	require.NotNil(t, trail[1].EntityID)
	assert.Equal(t, "e1", *trail[1].EntityID)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *audit.Recorder
	assert.NotPanics(t, func() {
		r.Record(context.Background(), audit.Entry{Type: core.AuditJobCreated})
	})
	assert.NotPanics(t, func() {
		audit.NewRecorder(nil).Record(context.Background(), audit.Entry{Type: core.AuditJobCreated})
	})
}
