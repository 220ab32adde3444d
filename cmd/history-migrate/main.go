package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/stoffej/water-rrd-m.nu/internal/storage/sqlite"
	"github.com/stoffej/water-rrd-m.nu/pkg/migrate"
)

const usage = `Usage: history-migrate -db history.db [-dry-run] <command> [version]

Commands:
  status        show the current and latest history schema versions
  up            apply all pending migrations
  to <version>  migrate up or down to version
  down <version>
                revert migrations until version is current
`

func main() {
	dbPath := flag.String("db", "", "Path to the snapshot history database (required)")
	dryRun := flag.Bool("dry-run", false, "Print the planned steps without applying them")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *dbPath == "" || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *dbPath, *dryRun, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dbPath string, dryRun bool, args []string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("history database: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	m := sqlite.NewMigrator(db)
	m.Logf = func(format string, a ...interface{}) {
		fmt.Printf(format+"\n", a...)
	}

	target := migrate.Latest
	switch args[0] {
	case "status":
		return printStatus(ctx, m)
	case "up":
	case "to", "down":
		if len(args) < 2 {
			return fmt.Errorf("%s needs a target version", args[0])
		}
		if target, err = strconv.Atoi(args[1]); err != nil || target < 0 {
			return fmt.Errorf("invalid target version %q", args[1])
		}
		if args[0] == "down" {
			current, err := m.Version(ctx)
			if err != nil {
				return err
			}
			if target >= current {
				return fmt.Errorf("target version %d must be below current version %d", target, current)
			}
		}
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	plan, err := m.Plan(ctx, target)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		fmt.Println("History schema is up to date")
		return nil
	}
	if dryRun {
		for _, step := range plan {
			fmt.Printf("would migrate schema %v\n", step)
		}
		return nil
	}
	return m.To(ctx, target)
}

func printStatus(ctx context.Context, m *migrate.Migrator) error {
	st, err := m.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Table:   %s\n", sqlite.VersionTable)
	fmt.Printf("Current: %d\n", st.Current)
	fmt.Printf("Latest:  %d\n", st.Latest)
	for _, mig := range st.Pending {
		fmt.Printf("  pending %d: %s\n", mig.Version, mig.Name)
	}
	return nil
}
