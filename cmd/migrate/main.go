package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"

	"github.com/watchpoints/points-engine/pkg/config"
	"github.com/watchpoints/points-engine/pkg/db"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

// command is one -cmd value. Offline commands only touch the migrations
// directory and never open the database.
type command struct {
	offline bool
	run     func(ctx context.Context, sqlDB *sql.DB, opts options) error
}

var commands = map[string]command{
	"up":     {run: gooseCommand("up")},
	"down":   {run: gooseCommand("down")},
	"status": {run: gooseCommand("status")},
	"current": {run: func(_ context.Context, sqlDB *sql.DB, _ options) error {
		current, err := migrate.Version(sqlDB)
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		fmt.Println("current version:", current)
		return nil
	}},
	"version": {run: func(ctx context.Context, sqlDB *sql.DB, opts options) error {
		if opts.version == "" {
			return errors.New("missing -version")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	}},
	"create": {offline: true, run: func(_ context.Context, _ *sql.DB, opts options) error {
		if opts.name == "" {
			return errors.New("missing -name")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	}},
	"validate": {offline: true, run: func(_ context.Context, _ *sql.DB, opts options) error {
		files, err := migrate.ValidateDir(opts.dir)
		if err != nil {
			return err
		}
		fmt.Printf("migration validation passed (%d migrations)\n", len(files))
		return nil
	}},
}

func gooseCommand(name string) func(context.Context, *sql.DB, options) error {
	return func(ctx context.Context, sqlDB *sql.DB, opts options) error {
		return migrate.Run(ctx, sqlDB, opts.dir, name)
	}
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(names, "|")
}

func main() {
	_ = godotenv.Load()

	cmdName := flag.String("cmd", "up", "migration command: "+commandNames())
	var opts options
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	if err := run(*cmdName, opts); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", *cmdName, err)
		os.Exit(1)
	}
}

func run(name string, opts options) error {
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command (want %s)", commandNames())
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": name,
		"dir": opts.dir,
	})

	if cmd.offline {
		return cmd.run(ctx, nil, opts)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	logg.Info(ctx, "migrate.start")
	if err := cmd.run(ctx, sqlDB, opts); err != nil {
		return err
	}
	logg.Info(ctx, "migrate.done")
	return nil
}
