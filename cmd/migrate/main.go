package main

import (
	"context"
	"database/sql"
	"flag"
	"io/fs"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"allot.org/internal/migrate"
	"allot.org/internal/obs"
)

func main() {
	log := obs.Logger()
	var (
		dsn            = flag.String("dsn", os.Getenv("ALLOT_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "", "Directory with SQL migrations (default: embedded)")
		seedsPath      = flag.String("seeds", "", "Directory with SQL seeds (default: embedded)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or ALLOT_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer db.Close()

	mgr := migrate.NewManager(db, source(*migrationsPath, migrate.Migrations()), source(*seedsPath, migrate.Seeds()))

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			log.WithField("migration", name).Info("applied")
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			log.WithField("migration", name).Info("rolled back")
		}
	case "seed":
		var applied []string
		applied, err = mgr.Seed(ctx)
		for _, name := range applied {
			log.WithField("seed", name).Info("applied")
		}
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, name := range history {
			log.WithField("migration", name).Info("applied")
		}
	default:
		log.Fatalf("unknown command %q", cmd)
	}
	if err != nil {
		log.WithError(err).Fatalf("migrate %s", cmd)
	}
}

func source(dir string, fallback fs.FS) fs.FS {
	if dir == "" {
		return fallback
	}
	return os.DirFS(dir)
}
