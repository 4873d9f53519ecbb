package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"voluntra.org/internal/migrate"
	"voluntra.org/migrations"
)

func main() {
	dsn := os.Getenv("VOLUNTRA_PG_DSN")
	if dsn == "" {
		log.Fatal("VOLUNTRA_PG_DSN is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	applied, err := migrate.NewManager(db, migrations.Files).Up(ctx)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if len(applied) == 0 {
		log.Println("schema up to date")
		return
	}
	for _, name := range applied {
		log.Printf("applied %s", name)
	}
}
