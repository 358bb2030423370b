// Package main inspects the position journal written by the sniper.
//
//	positions ps   [-open] [-mint M] [-run R] [-csv] [-summary]
//	positions logs [-id N] [-mint M] [-run R] [-limit N]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"solana-sniper/internal/config"
	"solana-sniper/internal/reporting"
	"solana-sniper/internal/storage"
	"solana-sniper/internal/storage/migrations"
	"solana-sniper/internal/storage/postgres"
	"solana-sniper/internal/storage/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "ps":
		err = runPS(ctx, os.Args[2:], os.Stdout)
	case "logs":
		err = runLogs(ctx, os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: positions <ps|logs> [flags]")
	fmt.Fprintln(os.Stderr, "  ps     list positions")
	fmt.Fprintln(os.Stderr, "  logs   show the transition journal")
}

// storeFlags are shared by every subcommand.
type storeFlags struct {
	configPath string
	backend    string
	sqlitePath string
	dsn        string
}

func (f *storeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to TOML config file (optional)")
	fs.StringVar(&f.backend, "backend", "", "Journal backend: sqlite or postgres (default from config)")
	fs.StringVar(&f.sqlitePath, "sqlite-path", "", "SQLite journal path (default from config)")
	fs.StringVar(&f.dsn, "postgres-dsn", "", "PostgreSQL connection string (default from config)")
}

// open resolves the backend from config plus flags and opens a journal.
func (f *storeFlags) open(ctx context.Context) (storage.Journal, func(), error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return storage.Journal{}, nil, err
	}
	sc := cfg.Storage
	if f.backend != "" {
		sc.Backend = f.backend
	}
	if f.sqlitePath != "" {
		sc.SQLitePath = f.sqlitePath
	}
	if f.dsn != "" {
		sc.PostgresDSN = f.dsn
	}

	switch strings.ToLower(sc.Backend) {
	case "sqlite":
		if _, err := os.Stat(sc.SQLitePath); err != nil {
			return storage.Journal{}, nil, fmt.Errorf("sqlite journal %s: %w", sc.SQLitePath, err)
		}
		db, err := sqlite.Open(ctx, sc.SQLitePath)
		if err != nil {
			return storage.Journal{}, nil, err
		}
		return sqlite.NewJournal(db), func() { db.Close() }, nil
	case "postgres":
		if sc.PostgresDSN == "" {
			return storage.Journal{}, nil, fmt.Errorf("postgres backend needs -postgres-dsn or storage.postgres_dsn")
		}
		pool, err := postgres.NewPool(ctx, sc.PostgresDSN)
		if err != nil {
			return storage.Journal{}, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return storage.Journal{}, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return postgres.NewJournal(pool), pool.Close, nil
	default:
		return storage.Journal{}, nil, fmt.Errorf("backend %q keeps no journal on disk; use sqlite or postgres", sc.Backend)
	}
}

func runPS(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ps", flag.ContinueOnError)
	var sf storeFlags
	sf.register(fs)
	openOnly := fs.Bool("open", false, "Only positions that are not terminal")
	mint := fs.String("mint", "", "Filter by mint")
	runID := fs.String("run", "", "Filter by run id")
	limit := fs.Int("limit", 0, "Maximum rows (0 = all)")
	asCSV := fs.Bool("csv", false, "Write CSV instead of a table")
	summary := fs.Bool("summary", true, "Print a PnL summary after the table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	journal, closeFn, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	positions, err := journal.Positions.List(ctx, storage.PositionFilter{
		RunID:    *runID,
		Mint:     *mint,
		OpenOnly: *openOnly,
		Limit:    *limit,
	})
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}

	if *asCSV {
		return reporting.WritePositionsCSV(out, positions)
	}
	if len(positions) == 0 {
		fmt.Fprintln(out, "No positions.")
		return nil
	}
	if err := reporting.WritePositions(out, positions, time.Now()); err != nil {
		return err
	}
	if *summary {
		fmt.Fprintln(out)
		return reporting.WriteSummary(out, reporting.Summarize(positions))
	}
	return nil
}

func runLogs(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	var sf storeFlags
	sf.register(fs)
	id := fs.Int64("id", 0, "Position id (use with -run when several runs share the journal)")
	mint := fs.String("mint", "", "Filter by mint")
	runID := fs.String("run", "", "Filter by run id")
	limit := fs.Int("limit", 0, "Maximum rows (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	journal, closeFn, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	transitions, err := journal.Transitions.List(ctx, storage.TransitionFilter{
		RunID:      *runID,
		PositionID: *id,
		Mint:       *mint,
		Limit:      *limit,
	})
	if err != nil {
		return fmt.Errorf("list transitions: %w", err)
	}
	if len(transitions) == 0 {
		fmt.Fprintln(out, "No transitions.")
		return nil
	}
	return reporting.WriteTransitions(out, transitions)
}
