package usecase

import "time"

const (
	// DefaultPostingTimeout bounds one posting unit of work once it has started.
	DefaultPostingTimeout = 5 * time.Second

	// IdempotencyKeyTTL is how long reference fingerprints are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// DefaultReportCacheTTL is how long historic trial balances are cached
	DefaultReportCacheTTL = 10 * time.Minute

	// ReferenceCachePrefix namespaces reference fingerprints in the cache
	ReferenceCachePrefix = "ledger:ref:"

	// TrialBalanceCachePrefix namespaces cached trial balances
	TrialBalanceCachePrefix = "ledger:trial-balance:"
)
