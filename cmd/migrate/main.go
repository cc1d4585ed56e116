package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"payrollhub.org/internal/config"
	"payrollhub.org/internal/migrate"
	"payrollhub.org/internal/obs"
	"payrollhub.org/internal/store/pg"
	"payrollhub.org/migrations"
)

func main() {
	log.SetFlags(0)
	dsn := flag.String("dsn", "", "PostgreSQL DSN (default: database.dsn from config)")
	flag.Parse()

	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [-dsn DSN] up|down|seed|status")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dsn == "" {
		*dsn = cfg.Database.DSN
	}
	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or PAYROLLHUB_DATABASE_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, err := pg.Open(*dsn, 2)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	logger := obs.NewLogger(os.Stderr, cfg.Log.Level, "text")
	mgr := migrate.NewManager(db.DB(), migrations.FS(), migrations.SQLDir, migrations.SeedsDir, migrate.WithLogger(logger))

	var names []string
	switch flag.Arg(0) {
	case "up":
		names, err = mgr.Up(ctx)
	case "down":
		var name string
		if name, err = mgr.Down(ctx); err == nil {
			names = []string{name}
		}
	case "seed":
		names, err = mgr.Seed(ctx)
	case "status":
		names, err = mgr.Status(ctx)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
	for _, n := range names {
		fmt.Println(n)
	}
}
