package domain

import "time"

// FeedStats accumulates per-(source, section) counters for one refresh run.
type FeedStats struct {
	Source  string
	Section string
	Found   int
	Added   int
	Skipped int
	Failed  int
}

// RunReport summarizes a completed refresh run. It lives in memory only;
// durable history is reconstructed from Article timestamps when needed.
type RunReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	TotalAdded int
	Feeds      []FeedStats
}

// StoreStats aggregates counters over the persisted article corpus.
type StoreStats struct {
	TotalArticles int
	AddedLast24h  int
	AddedLast7d   int
	WithImage     int
	TopAuthors    []AuthorCount
	LastUpdate    *time.Time
}

// AuthorCount pairs an author with the number of stored articles credited
// to them.
type AuthorCount struct {
	Author string
	Count  int
}
