// Command migrate applies, rolls back or reports the embedded SQL migrations.
//
//	migrate up              apply every pending migration
//	migrate down [-steps n] roll back the last n migrations (default 1)
//	migrate status          list migrations and when they were applied
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/learnhub/lms-core/internal/infrastructure/persistence/postgres"
	"github.com/learnhub/lms-core/pkg/logger"
)

var errUsage = errors.New("usage: migrate [-database-url url] [-timeout d] up|down|status [-steps n]")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	databaseURL := fs.String("database-url", os.Getenv("DATABASE_URL"), "postgres connection URL")
	timeout := fs.Duration("timeout", 2*time.Minute, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return errUsage
	}
	action := fs.Arg(0)

	steps := 1
	if action == "down" {
		down := flag.NewFlagSet("down", flag.ContinueOnError)
		down.IntVar(&steps, "steps", 1, "number of migrations to roll back")
		if err := down.Parse(fs.Args()[1:]); err != nil {
			return err
		}
		if steps < 1 {
			return fmt.Errorf("-steps must be at least 1")
		}
	}

	switch action {
	case "up", "down", "status":
	default:
		return errUsage
	}

	if *databaseURL == "" {
		return errors.New("DATABASE_URL or -database-url is required")
	}

	log := logger.New(logger.Options{Output: os.Stderr, Level: logger.LevelInfo, Format: "console"})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, err := postgres.NewConnectionFromURL(ctx, *databaseURL, postgres.DefaultConfig())
	if err != nil {
		return err
	}
	defer conn.Close()

	migrator := postgres.NewMigrator(conn)

	switch action {
	case "up":
		if err := migrator.Migrate(ctx); err != nil {
			return err
		}
		log.Info("migrations applied")
	case "down":
		if err := migrator.Rollback(ctx, steps); err != nil {
			return err
		}
		log.Info("migrations rolled back", logger.Int("steps", steps))
	}

	status, err := migrator.Status(ctx)
	if err != nil {
		return err
	}
	return printStatus(out, status)
}

func printStatus(out io.Writer, status []postgres.Migration) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED AT")
	for _, m := range status {
		applied := "pending"
		if m.IsApplied {
			applied = m.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", m.Version, m.Name, applied)
	}
	return tw.Flush()
}
