package jobctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpislabs/draftflow/pkg/core"
)

func TestWithJob(t *testing.T) {
	ctx := WithJob(context.Background(), &core.Job{ID: "job-1", Kind: core.KindPersona}, "worker-a")

	info, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, Info{JobID: "job-1", Kind: core.KindPersona, WorkerID: "worker-a"}, info)
	assert.Equal(t, "job-1", JobID(ctx))
}

func TestWithJob_Nil(t *testing.T) {
	ctx := WithJob(context.Background(), nil, "worker-a")
	_, ok := FromContext(ctx)
	assert.False(t, ok)
	assert.Empty(t, JobID(ctx))
}

func TestLogger_TagsRecords(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := WithJob(context.Background(), &core.Job{ID: "job-1", Kind: core.KindContent}, "worker-a")

	Logger(ctx, base).Info("hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "job-1", rec["job_id"])
	assert.Equal(t, "content", rec["kind"])
	assert.Equal(t, "worker-a", rec["worker_id"])
}

func TestLogger_OutsideJob(t *testing.T) {
	base := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, base, Logger(context.Background(), base))
	assert.NotNil(t, Logger(context.Background(), nil))
}

func TestForJob(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ForJob(context.Background(), base, "job-9").Info("outside")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "job-9", rec["job_id"])
	assert.NotContains(t, rec, "worker_id")

	buf.Reset()
	ctx := WithJob(context.Background(), &core.Job{ID: "job-1", Kind: core.KindPersona}, "worker-a")
	ForJob(ctx, base, "job-9").Info("inside")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "job-1", rec["job_id"])
	assert.Equal(t, "worker-a", rec["worker_id"])
}
