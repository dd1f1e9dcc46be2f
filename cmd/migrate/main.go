package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/foodbridge/foodbridge-backend/pkg/config"
	"github.com/foodbridge/foodbridge-backend/pkg/db"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"github.com/foodbridge/foodbridge-backend/pkg/migrate"
)

const usage = `usage: migrate -cmd <command> [flags]

commands:
  up        apply pending migrations
  down      roll back the latest migration
  status    list migrations and when they were applied
  version   move to -version (YYYYMMDDHHMMSS)
  create    write a new migration named -name into -dir
  validate  check file names and goose markers in -dir
`

func main() {
	cmd := flag.String("cmd", "up", "command to run")
	dir := flag.String("dir", "", "migrations directory (default: embedded for db commands, "+migrate.DefaultDir+" for create/validate)")
	name := flag.String("name", "", "migration name for create")
	version := flag.String("version", "", "target version for version")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	// file commands work offline and need no config
	switch *cmd {
	case "create":
		if *name == "" {
			exitf("create requires -name")
		}
		path, err := migrate.CreateSQLMigration(orDefault(*dir), *name)
		if err != nil {
			exitf("create: %v", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		if err := migrate.ValidateDir(orDefault(*dir)); err != nil {
			exitf("validate: %v", err)
		}
		fmt.Println("migrations ok")
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		exitf("config: %v", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == "console",
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, cfg.Store, logg)
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		os.Exit(1)
	}
	runner, err := migrate.NewRunner(sqlDB, *dir)
	if err != nil {
		logg.Error(ctx, "load migrations", err)
		os.Exit(1)
	}

	var ran []migrate.Applied
	switch *cmd {
	case "up":
		ran, err = runner.Up(ctx)
	case "down":
		ran, err = runner.Down(ctx)
	case "version":
		if *version == "" {
			exitf("version requires -version")
		}
		ran, err = runner.ToVersion(ctx, *version)
	case "status":
		err = printStatus(ctx, runner)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	for _, m := range ran {
		direction := "up"
		if m.Down {
			direction = "down"
		}
		logg.Info(logg.WithFields(ctx, map[string]any{"version": m.Version, "file": m.Path, "direction": direction}), "migration applied")
	}
}

func printStatus(ctx context.Context, runner *migrate.Runner) error {
	statuses, err := runner.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range statuses {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
	}
	return w.Flush()
}

func orDefault(dir string) string {
	if dir == "" {
		return migrate.DefaultDir
	}
	return dir
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
