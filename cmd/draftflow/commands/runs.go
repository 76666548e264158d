package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/mpislabs/draftflow"
	"github.com/mpislabs/draftflow/pkg/core"
)

// RunCreateAction starts a run for the given channels.
var RunCreateAction = withApp(func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error) {
	var deadline *time.Time
	if d := cmd.Duration("timeout"); d > 0 {
		t := time.Now().Add(d)
		deadline = &t
	}
	run, err := app.Engine.CreateRun(ctx, cmd.StringSlice("channel"), deadline)
	if err != nil {
		return nil, err
	}
	return newRunView(run, nil), nil
})

// RunReportAction replaces a run's outcome set.
var RunReportAction = withApp(func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error) {
	raw, err := readPayload(cmd.String("outcomes"), cmd.String("outcomes-file"))
	if err != nil {
		return nil, err
	}
	var outcomes []draftflow.Outcome
	if raw != nil {
		if err := json.Unmarshal(raw, &outcomes); err != nil {
			return nil, fmt.Errorf("%w: outcomes: %v", core.ErrInvalidRequest, err)
		}
	}
	id := cmd.String("id")
	if _, err := app.Engine.ReportOutcomes(ctx, id, outcomes); err != nil {
		return nil, err
	}
	run, stored, err := app.Engine.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	return newRunView(run, stored), nil
})

// RunShowAction prints a run with its outcomes.
var RunShowAction = withApp(func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error) {
	run, outcomes, err := app.Engine.Run(ctx, cmd.String("id"))
	if err != nil {
		return nil, err
	}
	return newRunView(run, outcomes), nil
})
