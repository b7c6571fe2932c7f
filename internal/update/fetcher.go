package update

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	appErrors "updatesvc/internal/errors"
)

// Default fetch settings.
const (
	DefaultTimeout   = 5 * time.Second
	DefaultUserAgent = "updatesvc-update-checker"

	// maxBodySize caps how much of a feed response is read.
	maxBodySize = 1 << 20
)

// Release describes a release extracted from a feed response.
type Release struct {
	Version     Version
	DisplayName string
	SourceURL   string // feed the release was read from

	// Optional fields, populated when the feed carries them.
	Notes       string
	PageURL     string
	PublishedAt time.Time
	Prerelease  bool
	Draft       bool
}

// Fetcher retrieves JSON documents from a release feed.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets a custom HTTP client. A client without a timeout gets
// DefaultTimeout.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if f.httpClient == nil {
			f.httpClient = &http.Client{}
		}
		f.httpClient.Timeout = timeout
	}
}

// WithUserAgent overrides the User-Agent sent with every request.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// NewFetcher creates a Fetcher with an explicit request timeout.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.httpClient == nil {
		f.httpClient = &http.Client{}
	}
	if f.httpClient.Timeout <= 0 {
		client := *f.httpClient
		client.Timeout = DefaultTimeout
		f.httpClient = &client
	}
	return f
}

// FetchObject GETs url and returns the body parsed as a JSON object.
func (f *Fetcher) FetchObject(ctx context.Context, url string) (gjson.Result, error) {
	doc, err := f.fetch(ctx, url)
	if err != nil {
		return gjson.Result{}, err
	}
	if !doc.IsObject() {
		return gjson.Result{}, fetchError(url, "response is not a JSON object", nil)
	}
	return doc, nil
}

// FetchArray GETs url and returns the elements of the JSON array body.
func (f *Fetcher) FetchArray(ctx context.Context, url string) ([]gjson.Result, error) {
	doc, err := f.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if !doc.IsArray() {
		return nil, fetchError(url, "response is not a JSON array", nil)
	}
	return doc.Array(), nil
}

func (f *Fetcher) fetch(ctx context.Context, url string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gjson.Result{}, fetchError(url, "create request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fetchError(url, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, fetchError(url, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return gjson.Result{}, fetchError(url, "read response", err)
	}
	if len(body) > maxBodySize {
		return gjson.Result{}, fetchError(url, "response too large", nil)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fetchError(url, "malformed JSON body", nil)
	}
	return gjson.ParseBytes(body), nil
}

// ExtractRelease reads a release descriptor from a feed object. The tag_name
// and name fields are required strings; tag_name must be a valid version.
func ExtractRelease(obj gjson.Result) (Release, error) {
	if !obj.IsObject() {
		return Release{}, malformedReleaseError("release is not a JSON object")
	}
	tag := obj.Get("tag_name")
	if tag.Type != gjson.String {
		return Release{}, malformedReleaseError("missing or non-string tag_name")
	}
	name := obj.Get("name")
	if name.Type != gjson.String {
		return Release{}, malformedReleaseError("missing or non-string name")
	}

	v, err := Normalize(tag.String())
	if err != nil {
		return Release{}, err
	}

	rel := Release{
		Version:     v,
		DisplayName: name.String(),
		Notes:       optionalString(obj, "body"),
		PageURL:     optionalString(obj, "html_url"),
		Prerelease:  obj.Get("prerelease").Type == gjson.True,
		Draft:       obj.Get("draft").Type == gjson.True,
	}
	if published := optionalString(obj, "published_at"); published != "" {
		if ts, err := time.Parse(time.RFC3339, published); err == nil {
			rel.PublishedAt = ts
		}
	}
	return rel, nil
}

// ExtractLatest returns the highest-versioned non-draft release in items.
// Entries that are not valid releases are skipped.
func ExtractLatest(items []gjson.Result) (Release, error) {
	var (
		latest Release
		found  bool
	)
	for _, item := range items {
		rel, err := ExtractRelease(item)
		if err != nil || rel.Draft {
			continue
		}
		if !found || rel.Version.GreaterThan(latest.Version) {
			latest = rel
			found = true
		}
	}
	if !found {
		return Release{}, malformedReleaseError("no valid release in list")
	}
	return latest, nil
}

func optionalString(obj gjson.Result, key string) string {
	v := obj.Get(key)
	if v.Type != gjson.String {
		return ""
	}
	return v.String()
}

func fetchError(url, reason string, err error) error {
	return appErrors.New(appErrors.CodeFetchFailed, fmt.Sprintf("fetch %s: %s", url, reason), err)
}

func malformedReleaseError(reason string) error {
	return appErrors.New(appErrors.CodeMalformedRelease, "malformed release: "+reason, nil)
}
