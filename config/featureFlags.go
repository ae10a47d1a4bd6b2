package config

import (
	"os"
	"strings"
	"time"
)

// BookProductionCostOnCreate switches the accounting policy for production:
// when true, CREATE/RESTOCK capitalize the consumed material cost as an EXPENSE record and
// DESTROY reverses the destroyed share of it with a REFUND record.
// When false (default) material cost is booked once, at purchase time.
//
// Set via env:
// - BOOK_PRODUCTION_COST_ON_CREATE=true
func BookProductionCostOnCreate() bool {
	return envBool("BOOK_PRODUCTION_COST_ON_CREATE")
}

// LedgerRetrySettings returns the bounded retry budget for serialization failures.
//
// Env:
// - LEDGER_RETRY_MAX_ATTEMPTS (default 4)
// - LEDGER_RETRY_BASE_BACKOFF_MS (default 50)
// - LEDGER_RETRY_MAX_BACKOFF_MS (default 2000)
func LedgerRetrySettings() (maxAttempts int, baseBackoff time.Duration, maxBackoff time.Duration) {
	maxAttempts = IntFromEnv("LEDGER_RETRY_MAX_ATTEMPTS", 4)
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	baseBackoff = time.Duration(IntFromEnv("LEDGER_RETRY_BASE_BACKOFF_MS", 50)) * time.Millisecond
	maxBackoff = time.Duration(IntFromEnv("LEDGER_RETRY_MAX_BACKOFF_MS", 2000)) * time.Millisecond
	return maxAttempts, baseBackoff, maxBackoff
}

func SkipMigrations() bool {
	return envBool("SKIP_MIGRATIONS")
}

func IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production")
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
