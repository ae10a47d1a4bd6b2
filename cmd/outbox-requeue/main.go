package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/craftstock_backend/config"
	"github.com/mmdatafocus/craftstock_backend/models"
)

// Puts FAILED or DEAD lifecycle events back into the dispatch queue.
func main() {
	ref := flag.String("ref", "", "Required: business operation ref of the event")
	dryRun := flag.Bool("dry-run", false, "Only print the current outbox status")
	flag.Parse()

	if strings.TrimSpace(*ref) == "" {
		fmt.Fprintln(os.Stderr, "--ref is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	ctx := context.Background()

	status, err := models.GetOutboxStatus(ctx, db, *ref)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load outbox status: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("event=%d type=%s status=%s attempts=%d\n", status.RecordId, status.EventType, status.PublishStatus, status.PublishAttempts)
	if *dryRun {
		return
	}

	status, err = models.ReprocessOutbox(ctx, db, *ref)
	if err != nil {
		fmt.Fprintf(os.Stderr, "requeue failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("requeued event=%d status=%s\n", status.RecordId, status.PublishStatus)
}
