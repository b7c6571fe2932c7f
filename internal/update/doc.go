// Package update provides version checking against a remote release feed.
//
// This package handles:
//   - Fetching release metadata as JSON from a feed URL
//   - Normalizing and comparing release versions
//   - Deciding whether the feed advertises a newer version
//
// Downloading and installing releases is out of scope. Checks perform no
// retries; schedule them from the caller and retry on the next cycle.
//
// Example usage:
//
//	checker := update.NewChecker(update.WithFeedURL(feedURL))
//	current, err := update.Normalize(version)
//	if err != nil {
//	    // handle error
//	}
//	decision, err := checker.CheckForUpdate(ctx, current, feedURL)
//	if err != nil {
//	    // skip this cycle
//	}
//	if decision.Available {
//	    // hand decision.Release to the installer
//	}
package update
