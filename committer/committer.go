// Package committer decides when a partition consumer writes its checkpoint:
// after every event, or periodically to trade commit latency for throughput.
package committer

// Committer paces checkpoint writes. TryCommit returning true hands the
// caller an exclusive commit slot that must be released with UnlockCommit,
// passing whether the checkpoint write succeeded.
type Committer interface {
	TryCommit() bool
	UnlockCommit(ok bool)

	RecordProcessed(count int)
}
