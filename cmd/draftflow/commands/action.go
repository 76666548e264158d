package commands

import (
	"context"

	"github.com/urfave/cli/v3"
)

type handler func(ctx context.Context, cmd *cli.Command, app *AppContext) (any, error)

// withApp builds the AppContext for one command, runs h and prints its result
// in the format chosen by --output.
func withApp(h handler) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		app, err := NewAppContext(ctx, cmd.String("env"))
		if err != nil {
			return err
		}
		defer app.Close()

		out, err := h(ctx, cmd, app)
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		return writeOutput(cmd.Root().Writer, cmd.String("output"), out)
	}
}

// MigrateAction creates or updates the database schema.
var MigrateAction = withApp(func(ctx context.Context, _ *cli.Command, app *AppContext) (any, error) {
	if err := app.Store.Migrate(ctx); err != nil {
		return nil, err
	}
	app.Logger.Info("database migrated")
	return nil, nil
})
