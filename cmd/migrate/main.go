package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"oficina-chat/config"
	"oficina-chat/internal/repository"
	"oficina-chat/pkg/database"
	"oficina-chat/pkg/logger"
)

const usage = `
Oficina Chat - Database CLI Tool

Usage:
  migrate [command]

Commands:
  up          Run GORM migrations for the chat tables
  status      Show database connection status
  seed-dev    Seed one driver/workshop thread for development
  archive     Transition a conversation to ARCHIVED (read-only)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go seed-dev
  go run cmd/migrate/main.go archive <conversation-id>
`

func main() {
	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.LoadConfig()
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	switch flag.Arg(0) {
	case "up":
		if err := database.Migrate(db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations applied")
	case "status":
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatalf("Failed to get database handle: %v", err)
		}
		if err := sqlDB.Ping(); err != nil {
			log.Fatalf("Database unreachable: %v", err)
		}
		log.Println("Database connection OK")
	case "seed-dev":
		if err := database.Migrate(db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		driverID, workshopID, conversationID, err := database.SeedDev(db)
		if err != nil {
			log.Fatalf("Seed failed: %v", err)
		}
		log.Printf("Seeded conversation %s (driver=%s workshop=%s)", conversationID, driverID, workshopID)
	case "archive":
		if flag.NArg() < 2 {
			flag.Usage()
			os.Exit(1)
		}
		id := flag.Arg(1)
		ctx := context.Background()
		store := repository.NewPostgresStore(db, nil, logger.New(cfg.AppMode))
		conv, err := store.GetConversation(ctx, id)
		if err != nil {
			log.Fatalf("Lookup failed: %v", err)
		}
		if err := store.ArchiveConversation(ctx, id); err != nil {
			log.Fatalf("Archive failed: %v", err)
		}
		log.Printf("Archived conversation %s (driver=%s workshop=%s, was %s)", conv.ID, conv.DriverID, conv.WorkshopID, conv.Status)
	default:
		flag.Usage()
		os.Exit(1)
	}
}
