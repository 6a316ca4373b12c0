package main

import (
	"flag"
	"fmt"
	"log"

	"farmsentry/internal/config"
	"farmsentry/internal/migrate"
	"farmsentry/internal/repository/sqlite"
)

func main() {
	cfg := config.Load()
	clipDir := flag.String("clips", cfg.ClipDirectory, "Directory containing recorded clips")
	dbPath := flag.String("db", cfg.DatabasePath, "Database path")
	label := flag.String("label", migrate.DefaultLabel, "Detected object recorded for indexed clips")
	flag.Parse()

	fmt.Printf("Indexing clips from %s into database %s\n", *clipDir, *dbPath)

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	report, err := migrate.IndexClips(*clipDir, *label, sqlite.NewAlertRepository(db))
	if err != nil {
		log.Fatalf("Failed to index clips: %v", err)
	}

	if report.Indexed == 0 {
		fmt.Println("No new clips found to index")
	} else {
		fmt.Printf("✅ Successfully indexed %d clips\n", report.Indexed)
	}
	if report.Existing > 0 {
		fmt.Printf("ℹ️  %d clips were already indexed\n", report.Existing)
	}
	if len(report.Skipped) > 0 {
		fmt.Printf("⚠️  Skipped %d files (invalid name or errors)\n", len(report.Skipped))
		for _, name := range report.Skipped {
			fmt.Printf("      - %s\n", name)
		}
	}
}
