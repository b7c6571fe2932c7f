package update

import (
	"context"
	"fmt"
	"time"
)

// DefaultFeedURL is the production release feed.
const DefaultFeedURL = "https://get.openziti.io/zdew/stable.json"

// Decision is the result of an update check.
type Decision struct {
	Available bool
	Current   Version
	Release   *Release // set only when Available
	CheckedAt time.Time
}

// Checker decides whether a feed advertises a version newer than the running one.
type Checker struct {
	fetcher *Fetcher
	feedURL string
	now     func() time.Time
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithFetcher sets the fetcher used to read feeds.
func WithFetcher(f *Fetcher) CheckerOption {
	return func(c *Checker) {
		c.fetcher = f
	}
}

// WithFeedURL sets the feed used by Check.
func WithFeedURL(url string) CheckerOption {
	return func(c *Checker) {
		c.feedURL = url
	}
}

// NewChecker creates a checker reading DefaultFeedURL with a default Fetcher.
func NewChecker(opts ...CheckerOption) *Checker {
	c := &Checker{
		feedURL: DefaultFeedURL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fetcher == nil {
		c.fetcher = NewFetcher()
	}
	return c
}

// FeedURL returns the feed used by Check.
func (c *Checker) FeedURL() string {
	return c.feedURL
}

// Check normalizes currentVersion and checks the configured feed.
func (c *Checker) Check(ctx context.Context, currentVersion string) (Decision, error) {
	current, err := Normalize(currentVersion)
	if err != nil {
		return Decision{}, fmt.Errorf("parse current version: %w", err)
	}
	return c.CheckForUpdate(ctx, current, c.feedURL)
}

// CheckForUpdate fetches the release object at feedURL and reports an update
// when its version is strictly greater than current. Errors are returned
// unchanged; retrying is left to the caller.
func (c *Checker) CheckForUpdate(ctx context.Context, current Version, feedURL string) (Decision, error) {
	obj, err := c.fetcher.FetchObject(ctx, feedURL)
	if err != nil {
		return Decision{}, err
	}
	release, err := ExtractRelease(obj)
	if err != nil {
		return Decision{}, err
	}
	release.SourceURL = feedURL
	return c.decide(current, release), nil
}

// CheckLatestOf is CheckForUpdate for feeds that return a list of releases.
// The highest non-draft release in the list is compared against current.
func (c *Checker) CheckLatestOf(ctx context.Context, current Version, listURL string) (Decision, error) {
	items, err := c.fetcher.FetchArray(ctx, listURL)
	if err != nil {
		return Decision{}, err
	}
	release, err := ExtractLatest(items)
	if err != nil {
		return Decision{}, err
	}
	release.SourceURL = listURL
	return c.decide(current, release), nil
}

func (c *Checker) decide(current Version, release Release) Decision {
	d := Decision{
		Current:   current,
		CheckedAt: c.now(),
	}
	if Compare(release.Version, current) == Greater {
		d.Available = true
		d.Release = &release
	}
	return d
}
