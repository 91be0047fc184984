package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pressly/goose/v3"

	_ "github.com/lib/pq"
)

type Config struct {
	DatabaseURL   string `envconfig:"DATABASE_URL"   required:"true"`
	MigrationsDir string `envconfig:"MIGRATIONS_DIR" default:"./db/migration"`
}

// Usage: migration [-command up|down|status|redo|version] [-to version]
func main() {
	command := flag.String("command", "up", "goose command to run (up, up-to, down, status, redo, version)")
	to := flag.String("to", "", "target version for up-to")
	flag.Parse()

	var cfg Config
	log.Println("Loading configuration...")

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("Failed to set goose dialect: %v", err)
	}
	if _, err := os.Stat(cfg.MigrationsDir); os.IsNotExist(err) {
		log.Fatalf("Migrations directory not found: %s", cfg.MigrationsDir)
	}

	var args []string
	if *command == "up-to" {
		if *to == "" {
			log.Fatal("-to is required for up-to")
		}
		args = append(args, *to)
	}

	log.Printf("Running goose %s from: %s", *command, cfg.MigrationsDir)
	if err := goose.RunContext(context.Background(), *command, db, cfg.MigrationsDir, args...); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully!")
}
