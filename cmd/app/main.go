package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/folio/internal"
	"github.com/starford/folio/internal/changeset"
	pkgconfig "github.com/starford/folio/pkg/config"
)

type action func(ctx context.Context, cmd *cli.Command, app *internal.App) error

// withApp loads the configuration and wires the application around fn.
func withApp(fn action) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		configPath := cmd.String("config")

		cfg := internal.NewDefaultConfig()
		if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}

		app, err := internal.New(ctx, internal.WithConfig(cfg))
		if err != nil {
			return fmt.Errorf("app init error: %w", err)
		}
		defer app.Close()

		return fn(ctx, cmd, app)
	}
}

func walk(ctx context.Context, _ *cli.Command, app *internal.App) error {
	return app.Walk(ctx)
}

func update(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	cs := changeset.ChangeSet{
		Added:    cmd.StringSlice("added"),
		Modified: cmd.StringSlice("modified"),
		Deleted:  cmd.StringSlice("deleted"),
	}
	for _, r := range cmd.StringSlice("renamed") {
		from, to, ok := strings.Cut(r, "=")
		if !ok {
			return fmt.Errorf("renamed %q: want old=new", r)
		}
		if cs.Renamed == nil {
			cs.Renamed = make(map[string]string)
		}
		cs.Renamed[from] = to
	}
	if cmd.Bool("stdin") {
		var in changeset.ChangeSet
		if err := json.NewDecoder(os.Stdin).Decode(&in); err != nil {
			return fmt.Errorf("decode change set: %w", err)
		}
		cs.Added = append(cs.Added, in.Added...)
		cs.Modified = append(cs.Modified, in.Modified...)
		cs.Deleted = append(cs.Deleted, in.Deleted...)
		for from, to := range in.Renamed {
			if cs.Renamed == nil {
				cs.Renamed = make(map[string]string)
			}
			cs.Renamed[from] = to
		}
	}
	return app.Update(ctx, cs)
}

func scan(ctx context.Context, _ *cli.Command, app *internal.App) error {
	return app.Scan(ctx)
}

func watch(ctx context.Context, _ *cli.Command, app *internal.App) error {
	return app.Watch(ctx)
}

func search(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	q := strings.Join(cmd.Args().Slice(), " ")
	return app.Search(ctx, q, cmd.String("sort"), intFlag(cmd, "page"), cmd.Bool("reverse"))
}

func counts(_ context.Context, cmd *cli.Command, app *internal.App) error {
	names := cmd.Args().Slice()
	if len(names) == 0 {
		names = app.CounterNames()
	}
	for _, name := range names {
		if err := app.Counts(name); err != nil {
			return err
		}
	}
	return nil
}

func resolve(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("resolve takes exactly one fullname")
	}
	return app.Resolve(ctx, cmd.Args().First(), cmd.Bool("body"))
}

func templates(_ context.Context, cmd *cli.Command, app *internal.App) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("templates takes a fullname and a flavour")
	}
	app.Templates(cmd.Args().Get(0), cmd.Args().Get(1))
	return nil
}

func intFlag(cmd *cli.Command, name string) int {
	switch v := cmd.Value(name).(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func main() {
	cmd := &cli.Command{
		Name:  "folio",
		Usage: "File-backed content engine: resolve, index and count articles kept in a repository",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "walk",
				Usage:  "Rebuild the index and counters from scratch",
				Action: withApp(walk),
			},
			{
				Name:  "update",
				Usage: "Apply a change set of repository-relative paths",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "added", Aliases: []string{"a"}},
					&cli.StringSliceFlag{Name: "modified", Aliases: []string{"m"}},
					&cli.StringSliceFlag{Name: "deleted", Aliases: []string{"d"}},
					&cli.StringSliceFlag{Name: "renamed", Aliases: []string{"r"}, Usage: "old=new"},
					&cli.BoolFlag{Name: "stdin", Usage: "Read a JSON change set from stdin"},
				},
				Action: withApp(update),
			},
			{
				Name:   "scan",
				Usage:  "Detect changes by checksum and apply them",
				Action: withApp(scan),
			},
			{
				Name:   "watch",
				Usage:  "Apply file system changes as they happen",
				Action: withApp(watch),
			},
			{
				Name:      "search",
				Usage:     "Query the index",
				ArgsUsage: "[query terms]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "sort", Usage: "Sortable field"},
					&cli.BoolFlag{Name: "reverse"},
					&cli.IntFlag{Name: "page", Value: 1},
				},
				Action: withApp(search),
			},
			{
				Name:      "counts",
				Usage:     "Print counter trees",
				ArgsUsage: "[categories|tags|archive]...",
				Action:    withApp(counts),
			},
			{
				Name:      "resolve",
				Usage:     "Print the merged metadata of an article",
				ArgsUsage: "<fullname>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "body", Usage: "Print the article body too"},
				},
				Action: withApp(resolve),
			},
			{
				Name:      "templates",
				Usage:     "List template candidates for an article",
				ArgsUsage: "<fullname> <flavour>",
				Action:    withApp(templates),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
