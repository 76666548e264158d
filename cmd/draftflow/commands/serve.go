package commands

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/mpislabs/draftflow"
)

// ServeAction runs a worker and the maintenance scheduler until interrupted.
var ServeAction = withApp(func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error) {
	if cmd.Bool("migrate") {
		if err := app.Store.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	concurrency := int(cmd.Int("concurrency"))
	if concurrency <= 0 {
		concurrency = app.Config.WorkerConcurrency
	}
	opts := []draftflow.WorkerOption{
		draftflow.Concurrency(concurrency),
		draftflow.WithPollInterval(cmd.Duration("poll")),
	}
	if id := cmd.String("worker-id"); id != "" {
		opts = append(opts, draftflow.WithWorkerID(id))
	}
	w := app.Engine.NewWorker(opts...)
	scheduler := app.Engine.Maintenance(draftflow.DefaultMaintenanceConfig())

	app.Logger.Info("serving", "worker_id", w.ID(), "concurrency", concurrency, "tasks", scheduler.Tasks())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Start(gctx) })
	g.Go(func() error { return scheduler.Start(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		app.Logger.Info("shutdown complete")
		return nil, nil
	}
	return nil, err
})
