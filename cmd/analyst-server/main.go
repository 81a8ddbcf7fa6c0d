// Command analyst-server is the sandboxed tool server. It owns the only
// database connection, answers exactly one framed (initialize, tools/call)
// exchange on its standard streams, and exits. The host spawns one of these
// per orchestrated turn; isolation from the host process is the point, so
// this binary never shares memory with its caller.
//
// Usage:
//
//	analyst-server                 serve one exchange on stdin/stdout
//	analyst-server -seed 2000      seed the database and exit
//	analyst-server -schema         print the table DDL and exit
//
// Flags:
//
//	-db string    Database path (default: data/payments.db, relative to the
//	              working directory, which the host pins to this binary's
//	              own directory)
//	-seed int     Seed the database with n fake transactions and exit
//	-schema       Print the database schema and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fwojciec/analyst/server"
	"github.com/fwojciec/analyst/store"
)

const defaultDBPath = "data/payments.db"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	var (
		dbPath      = flag.String("db", defaultDBPath, "Database path")
		seedRows    = flag.Int("seed", 0, "Seed the database with n fake transactions and exit")
		printSchema = flag.Bool("schema", false, "Print the database schema and exit")
	)
	flag.Parse()

	ctx := context.Background()

	if *seedRows > 0 {
		return seed(ctx, logger, *dbPath, *seedRows)
	}

	st, err := store.OpenReadOnly(*dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	srv := server.New(st, server.WithLogger(logger))

	if *printSchema {
		ddl, err := srv.Schema(ctx)
		if err != nil {
			return err
		}
		fmt.Println(ddl)
		return nil
	}

	return srv.Serve(ctx, os.Stdin, os.Stdout)
}

func seed(ctx context.Context, logger *slog.Logger, dbPath string, n int) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	count, err := st.Seed(ctx, n)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	logger.Info("database ready", "rows", count, "path", dbPath)
	return nil
}
