package commands

import (
	"time"

	"github.com/urfave/cli/v3"
)

func jobIDFlag() cli.Flag {
	return &cli.StringFlag{Name: "id", Usage: "job id", Required: true}
}

// New builds the command tree.
func New() *cli.Command {
	return &cli.Command{
		Name:  "draftflow",
		Usage: "collect sources, generate drafts, review and commit them",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env", Usage: "path to a .env file", Value: ".env"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "json or yaml", Value: "json"},
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "create or update the database schema",
				Action: MigrateAction,
			},
			{
				Name:  "serve",
				Usage: "run a worker and the maintenance scheduler",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "concurrency", Usage: "jobs driven at once (default WORKER_CONCURRENCY)"},
					&cli.DurationFlag{Name: "poll", Usage: "queue poll interval", Value: time.Second},
					&cli.StringFlag{Name: "worker-id", Usage: "lease owner name"},
					&cli.BoolFlag{Name: "migrate", Usage: "migrate the schema before starting"},
				},
				Action: ServeAction,
			},
			{
				Name:  "job",
				Usage: "manage jobs",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "queue a new job",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "kind", Usage: "persona, reflection or content", Required: true},
							&cli.StringFlag{Name: "target", Usage: "target entity name", Required: true},
							&cli.StringFlag{Name: "input", Usage: "job input as JSON"},
							&cli.StringFlag{Name: "input-file", Usage: "job input file, JSON or YAML"},
						},
						Action: JobStartAction,
					},
					{
						Name:   "show",
						Usage:  "show a job",
						Flags:  []cli.Flag{jobIDFlag()},
						Action: JobShowAction,
					},
					{
						Name:  "list",
						Usage: "list jobs",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "status", Usage: "filter by status"},
							&cli.StringFlag{Name: "kind", Usage: "filter by kind"},
							&cli.IntFlag{Name: "limit", Usage: "maximum number of jobs", Value: 50},
						},
						Action: JobListAction,
					},
					{
						Name:   "stats",
						Usage:  "count jobs per kind and status",
						Action: JobStatsAction,
					},
					{
						Name:  "cancel",
						Usage: "fail a job",
						Flags: []cli.Flag{
							jobIDFlag(),
							&cli.StringFlag{Name: "reason", Usage: "failure reason", Value: "cancelled"},
						},
						Action: JobCancelAction,
					},
					{
						Name:   "sources",
						Usage:  "list the sources recorded for a job",
						Flags:  []cli.Flag{jobIDFlag()},
						Action: JobSourcesAction,
					},
					{
						Name:   "audit",
						Usage:  "show a job's audit trail",
						Flags:  []cli.Flag{jobIDFlag()},
						Action: JobAuditAction,
					},
				},
			},
			{
				Name:  "draft",
				Usage: "review drafts",
				Commands: []*cli.Command{
					{
						Name:  "show",
						Usage: "show the latest draft of a job",
						Flags: []cli.Flag{
							jobIDFlag(),
							&cli.IntFlag{Name: "no", Usage: "draft number (default latest)"},
						},
						Action: DraftShowAction,
					},
					{
						Name:   "list",
						Usage:  "list every draft of a job",
						Flags:  []cli.Flag{jobIDFlag()},
						Action: DraftListAction,
					},
					{
						Name:  "edit",
						Usage: "apply edits to a draft, creating the next one",
						Flags: []cli.Flag{
							jobIDFlag(),
							&cli.IntFlag{Name: "base", Usage: "draft number the edits apply to", Required: true},
							&cli.StringFlag{Name: "edits", Usage: "edits as JSON"},
							&cli.StringFlag{Name: "edits-file", Usage: "edits file, JSON or YAML"},
						},
						Action: DraftEditAction,
					},
					{
						Name:  "confirm",
						Usage: "commit a draft",
						Flags: []cli.Flag{
							jobIDFlag(),
							&cli.IntFlag{Name: "no", Usage: "draft number to commit", Required: true},
						},
						Action: DraftConfirmAction,
					},
				},
			},
			{
				Name:  "entity",
				Usage: "inspect committed entities",
				Commands: []*cli.Command{
					{
						Name:  "show",
						Usage: "show an entity and its versions",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "slug", Usage: "entity slug", Required: true},
							&cli.BoolFlag{Name: "documents", Usage: "include version documents"},
						},
						Action: EntityShowAction,
					},
				},
			},
			{
				Name:  "run",
				Usage: "aggregate publish outcomes",
				Commands: []*cli.Command{
					{
						Name:  "create",
						Usage: "start a run",
						Flags: []cli.Flag{
							&cli.StringSliceFlag{Name: "channel", Usage: "expected channel (repeatable)", Required: true},
							&cli.DurationFlag{Name: "timeout", Usage: "finalize after this long (default RUN_DEFAULT_TIMEOUT)"},
						},
						Action: RunCreateAction,
					},
					{
						Name:  "report",
						Usage: "replace a run's outcome set",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "id", Usage: "run id", Required: true},
							&cli.StringFlag{Name: "outcomes", Usage: "outcomes as JSON"},
							&cli.StringFlag{Name: "outcomes-file", Usage: "outcomes file, JSON or YAML"},
						},
						Action: RunReportAction,
					},
					{
						Name:   "show",
						Usage:  "show a run",
						Flags:  []cli.Flag{&cli.StringFlag{Name: "id", Usage: "run id", Required: true}},
						Action: RunShowAction,
					},
				},
			},
		},
	}
}
