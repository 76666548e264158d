package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/mpislabs/draftflow"
	"github.com/mpislabs/draftflow/pkg/core"
)

// JobStartAction queues a new job.
var JobStartAction = withApp(func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error) {
	input, err := readPayload(cmd.String("input"), cmd.String("input-file"))
	if err != nil {
		return nil, err
	}
	job, err := app.Engine.StartJob(ctx, draftflow.StartRequest{
		Kind:       draftflow.JobKind(cmd.String("kind")),
		TargetName: cmd.String("target"),
		Input:      input,
	})
	if err != nil {
		return nil, err
	}
	return newJobView(job), nil
})

// JobShowAction prints one job.
var JobShowAction = withApp(func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error) {
	job, err := app.Engine.Job(ctx, cmd.String("id"))
	if err != nil {
		return nil, err
	}
	return newJobView(job), nil
})

// JobListAction lists jobs.
var JobListAction = withApp(func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error) {
	jobs, err := app.Engine.ListJobs(ctx, draftflow.JobFilter{
		Status: draftflow.JobStatus(cmd.String("status")),
		Kind:   draftflow.JobKind(cmd.String("kind")),
		Limit:  int(cmd.Int("limit")),
	})
	if err != nil {
		return nil, err
	}
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		v := newJobView(j)
		v.Input = nil
		views = append(views, v)
	}
	return views, nil
})

// JobStatsAction prints job counts per kind and status.
var JobStatsAction = withApp(func(ctx context.Context, _ *cli.Command, app *AppContext) (any, error) {
	counts, err := app.Engine.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]int64, len(counts))
	for kind, byStatus := range counts {
		row := make(map[string]int64, len(byStatus))
		for status, n := range byStatus {
			row[string(status)] = n
		}
		out[string(kind)] = row
	}
	return out, nil
})

// JobCancelAction fails a job.
var JobCancelAction = withApp(func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error) {
	id := cmd.String("id")
	if err := app.Engine.Fail(ctx, id, cmd.String("reason")); err != nil {
		return nil, err
	}
	job, err := app.Engine.Job(ctx, id)
	if err != nil {
		return nil, err
	}
	return newJobView(job), nil
})

// JobSourcesAction lists the sources recorded for a job.
var JobSourcesAction = withApp(func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error) {
	sources, err := app.Engine.Sources(ctx, cmd.String("id"))
	if err != nil {
		return nil, err
	}
	views := make([]sourceView, 0, len(sources))
	for _, s := range sources {
		views = append(views, newSourceView(s))
	}
	return views, nil
})

// JobAuditAction prints a job's audit trail.
var JobAuditAction = withApp(func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error) {
	id := cmd.String("id")
	if _, err := app.Engine.Job(ctx, id); err != nil {
		return nil, err
	}
	events, err := app.Engine.Audit(ctx, id)
	if err != nil {
		return nil, err
	}
	views := make([]auditView, 0, len(events))
	for _, e := range events {
		views = append(views, auditView{Type: e.Type, Details: e.Details, CreatedAt: e.CreatedAt})
	}
	return views, nil
})

// DraftShowAction prints the latest draft, or the one named by --no.
var DraftShowAction = withApp(func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error) {
	var (
		draft *draftflow.Draft
		err   error
	)
	if no := int(cmd.Int("no")); no > 0 {
		draft, err = app.Engine.Draft(ctx, cmd.String("id"), no)
	} else {
		draft, err = app.Engine.CurrentDraft(ctx, cmd.String("id"))
	}
	if err != nil {
		return nil, err
	}
	return newDraftView(draft), nil
})

// DraftListAction lists every draft of a job.
var DraftListAction = withApp(func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error) {
	drafts, err := app.Engine.Drafts(ctx, cmd.String("id"))
	if err != nil {
		return nil, err
	}
	views := make([]draftView, 0, len(drafts))
	for _, d := range drafts {
		views = append(views, newDraftView(d))
	}
	return views, nil
})

// DraftEditAction applies edits to a draft.
var DraftEditAction = withApp(func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error) {
	raw, err := readPayload(cmd.String("edits"), cmd.String("edits-file"))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: no edits given", core.ErrInvalidEdit)
	}
	edits, err := decodeEdits(raw)
	if err != nil {
		return nil, err
	}
	draft, err := app.Engine.ApplyEdits(ctx, cmd.String("id"), int(cmd.Int("base")), edits)
	if err != nil {
		return nil, err
	}
	return newDraftView(draft), nil
})

// DraftConfirmAction commits a draft.
var DraftConfirmAction = withApp(func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error) {
	res, err := app.Engine.Confirm(ctx, cmd.String("id"), int(cmd.Int("no")))
	if err != nil {
		return nil, err
	}
	return commitView{
		Job:      newJobView(res.Job),
		EntityID: res.Entity.ID,
		Version:  newVersionView(res.Version, false),
		Degraded: res.Degraded,
	}, nil
})

// EntityShowAction prints an entity and its versions.
var EntityShowAction = withApp(func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error) {
	entity, err := app.Engine.EntityBySlug(ctx, cmd.String("slug"))
	if err != nil {
		return nil, err
	}
	versions, err := app.Engine.Versions(ctx, entity.ID)
	if err != nil {
		return nil, err
	}
	view := entityView{ID: entity.ID, Name: entity.Name, Slug: entity.Slug}
	if entity.ActiveVersionID != nil {
		view.ActiveVersionID = *entity.ActiveVersionID
	}
	withDocs := cmd.Bool("documents")
	for _, v := range versions {
		view.Versions = append(view.Versions, newVersionView(v, withDocs))
	}
	return view, nil
})
