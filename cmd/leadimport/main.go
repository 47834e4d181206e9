package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/leadops/crm-api/internal/leadimport"
)

func main() {
	_ = godotenv.Load()

	file := flag.String("file", "", "CSV file to import")
	baseURL := flag.String("api", envOrDefault("LEADOPS_API_URL", "http://localhost:8080"), "API base URL")
	token := flag.String("token", os.Getenv("LEADOPS_API_TOKEN"), "bearer token")
	year := flag.String("year", "", "academic year for imported leads (defaults to the server setting)")
	dryRun := flag.Bool("dry-run", false, "classify rows and stop before importing")
	previewRows := flag.Int("preview", 10, "rows to print from the preview")
	flag.Parse()

	if *file == "" {
		log.Fatal("-file is required")
	}
	if err := leadimport.CheckFileName(*file); err != nil {
		log.Fatal(err)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read %s: %v", *file, err)
	}

	preview, err := leadimport.Prepare(*file, data, *previewRows)
	if err != nil {
		log.Fatalf("prepare %s: %v", *file, err)
	}

	c := preview.Counts
	fmt.Printf("%s: %d rows, %d valid, %d invalid, %d duplicate\n", preview.FileName, c.Total, c.Valid, c.Invalid, c.Duplicate)
	for _, row := range preview.Sample {
		line := fmt.Sprintf("  row %d [%s] %s <%s>", row.RowNumber, row.Status, row.FullName, row.Email)
		if row.Error != "" {
			line += ": " + row.Error
		}
		fmt.Println(line)
	}
	if *dryRun {
		return
	}
	if *token == "" {
		log.Fatal("-token or LEADOPS_API_TOKEN is required to import")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := leadimport.NewClient(*baseURL, *token)
	orchestrator := leadimport.Orchestrator{
		Jobs:      client,
		Submitter: client,
		Tick:      2 * time.Second,
		Progress: func(percent int, stage string) {
			fmt.Printf("[%3d%%] %s\n", percent, stage)
		},
	}

	run, err := orchestrator.Run(ctx, preview, *year)
	if errors.Is(err, leadimport.ErrNoValidRows) {
		log.Fatal("nothing to import: no valid rows")
	}
	if err != nil {
		if run.ImportID != uuid.Nil {
			log.Fatalf("import %s failed: %v", run.ImportID, err)
		}
		log.Fatalf("import failed: %v", err)
	}

	fmt.Printf("import %s: %d imported, %d failed\n", run.ImportID, run.SuccessCount, run.FailCount)
	for _, rowErr := range run.Errors {
		fmt.Printf("  row %d: %s\n", rowErr.Row, rowErr.Error)
	}
	if !run.Success {
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
