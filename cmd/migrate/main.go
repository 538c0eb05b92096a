package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

var errUsage = errors.New("usage")

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "migrations directory (default is embedded in the binary)")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate work on files only.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			exit(fmt.Errorf("%w: missing -name for create", errUsage))
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name, time.Now())
		if err != nil {
			exit(err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			exit(err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	if cfg.DB.IsSQLite() {
		exit(fmt.Errorf("sql migrations target postgres; sqlite databases are auto-migrated in dev"))
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	runner, err := migrate.NewRunner(sqlDB, opts.dir)
	requireResource(ctx, logg, "migration runner", err)

	logg.Info(ctx, "migrate ready")
	if err := run(ctx, logg, runner, opts); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logg *logger.Logger, runner *migrate.Runner, opts options) error {
	switch opts.cmd {
	case "up":
		results, err := runner.Up(ctx)
		logResults(ctx, logg, results)
		return err
	case "down":
		result, err := runner.Down(ctx)
		if result != nil {
			logResults(ctx, logg, []migrate.Result{*result})
		}
		return err
	case "status":
		rows, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			state := "pending"
			if row.Applied {
				state = "applied"
			}
			fmt.Printf("%d\t%s\t%s\n", row.Version, state, row.Path)
		}
		return nil
	case "version":
		if opts.version == "" {
			return fmt.Errorf("%w: missing -version for version command", errUsage)
		}
		results, err := runner.MigrateToVersion(ctx, opts.version)
		logResults(ctx, logg, results)
		return err
	default:
		return fmt.Errorf("%w: unknown -cmd value %q", errUsage, opts.cmd)
	}
}

func logResults(ctx context.Context, logg *logger.Logger, results []migrate.Result) {
	for _, res := range results {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":   res.Version,
			"path":      res.Path,
			"direction": res.Direction,
			"empty":     res.Empty,
		}), "migration applied")
	}
	if len(results) == 0 {
		logg.Info(ctx, "no migrations to apply")
	}
}

func exit(err error) {
	fmt.Fprintln(os.Stderr, err)
	if errors.Is(err, errUsage) {
		flag.Usage()
	}
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
