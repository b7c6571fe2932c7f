package update

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	appErrors "updatesvc/internal/errors"
)

func TestNewFetcherDefaults(t *testing.T) {
	f := NewFetcher()
	if f.httpClient == nil {
		t.Fatal("httpClient should not be nil")
	}
	if f.httpClient.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", f.httpClient.Timeout, DefaultTimeout)
	}
	if f.userAgent != DefaultUserAgent {
		t.Errorf("userAgent = %q, want %q", f.userAgent, DefaultUserAgent)
	}
}

func TestNewFetcherWithOptions(t *testing.T) {
	custom := &http.Client{Timeout: 10 * time.Second}
	f := NewFetcher(WithHTTPClient(custom), WithUserAgent("probe"))
	if f.httpClient != custom {
		t.Error("custom HTTP client not applied")
	}
	if f.userAgent != "probe" {
		t.Errorf("userAgent = %q, want probe", f.userAgent)
	}

	f = NewFetcher(WithTimeout(250 * time.Millisecond))
	if f.httpClient.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v, want 250ms", f.httpClient.Timeout)
	}
}

func TestNewFetcherNeverLeavesTimeoutUnset(t *testing.T) {
	noTimeout := &http.Client{}
	f := NewFetcher(WithHTTPClient(noTimeout))
	if f.httpClient.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", f.httpClient.Timeout, DefaultTimeout)
	}
	if noTimeout.Timeout != 0 {
		t.Error("caller's client should not be modified")
	}
}

func TestFetchObjectSendsClientSignature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if got := r.Header.Get("User-Agent"); got != DefaultUserAgent {
			t.Errorf("User-Agent = %q, want %q", got, DefaultUserAgent)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"tag_name":"v1.0.0","name":"one"}`)
	}))
	defer server.Close()

	obj, err := NewFetcher().FetchObject(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchObject() error: %v", err)
	}
	if got := obj.Get("name").String(); got != "one" {
		t.Errorf("name = %q, want one", got)
	}
}

func TestFetchObjectFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprint(w, `{"tag_name": "v1.0.0",`)
			},
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
		},
		{
			name: "array instead of object",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprint(w, `[{"tag_name":"v1.0.0","name":"one"}]`)
			},
		},
		{
			name: "oversized body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprintf(w, `{"name":"%s"}`, strings.Repeat("x", maxBodySize))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			obj, err := NewFetcher().FetchObject(context.Background(), server.URL)
			if err == nil {
				t.Fatalf("FetchObject() expected error, got %s", obj.Raw)
			}
			if !appErrors.IsCode(err, appErrors.CodeFetchFailed) {
				t.Errorf("error code = %q, want %q", appErrors.CodeOf(err), appErrors.CodeFetchFailed)
			}
			if obj.Exists() {
				t.Error("FetchObject() should not return a partial result")
			}
		})
	}
}

func TestFetchObjectConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewFetcher().FetchObject(context.Background(), url)
	if !appErrors.IsCode(err, appErrors.CodeFetchFailed) {
		t.Fatalf("error = %v, want code %q", err, appErrors.CodeFetchFailed)
	}
}

func TestFetchObjectHonorsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	start := time.Now()
	_, err := NewFetcher(WithTimeout(50*time.Millisecond)).FetchObject(context.Background(), server.URL)
	if !appErrors.IsCode(err, appErrors.CodeFetchFailed) {
		t.Fatalf("error = %v, want code %q", err, appErrors.CodeFetchFailed)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("fetch took %v, timeout was not honored", elapsed)
	}
}

func TestFetchObjectHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewFetcher().FetchObject(ctx, server.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded in chain", err)
	}
}

func TestFetchArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `[{"tag_name":"v1.0.0","name":"one"},{"tag_name":"v1.1.0","name":"two"}]`)
	}))
	defer server.Close()

	items, err := NewFetcher().FetchArray(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchArray() error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}

	objServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"tag_name":"v1.0.0","name":"one"}`)
	}))
	defer objServer.Close()

	if _, err := NewFetcher().FetchArray(context.Background(), objServer.URL); !appErrors.IsCode(err, appErrors.CodeFetchFailed) {
		t.Fatalf("FetchArray(object) error = %v, want code %q", err, appErrors.CodeFetchFailed)
	}
}

func TestExtractRelease(t *testing.T) {
	rel, err := ExtractRelease(gjson.Parse(`{
		"tag_name": "v2.1.0",
		"name": "Release 2.1.0",
		"body": "notes",
		"html_url": "https://example.com/releases/v2.1.0",
		"published_at": "2025-03-01T10:00:00Z",
		"prerelease": false,
		"assets": []
	}`))
	if err != nil {
		t.Fatalf("ExtractRelease() error: %v", err)
	}
	if !rel.Version.Equal(MustNormalize("2.1.0")) {
		t.Errorf("Version = %s, want v2.1.0", rel.Version)
	}
	if rel.DisplayName != "Release 2.1.0" {
		t.Errorf("DisplayName = %q", rel.DisplayName)
	}
	if rel.Notes != "notes" {
		t.Errorf("Notes = %q", rel.Notes)
	}
	if rel.PageURL != "https://example.com/releases/v2.1.0" {
		t.Errorf("PageURL = %q", rel.PageURL)
	}
	if want := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC); !rel.PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", rel.PublishedAt, want)
	}
}

func TestExtractReleaseMalformed(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"empty object", `{}`},
		{"only name", `{"name":"Release"}`},
		{"other keys", `{"version":"1.0.0","name":"Release","body":"x"}`},
		{"tag_name null", `{"tag_name":null,"name":"Release"}`},
		{"tag_name number", `{"tag_name":1.2,"name":"Release"}`},
		{"tag_name object", `{"tag_name":{"v":"1"},"name":"Release"}`},
		{"missing name", `{"tag_name":"v1.0.0"}`},
		{"name not string", `{"tag_name":"v1.0.0","name":false}`},
		{"not an object", `["v1.0.0"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractRelease(gjson.Parse(tt.json))
			if !appErrors.IsCode(err, appErrors.CodeMalformedRelease) {
				t.Errorf("ExtractRelease(%s) error = %v, want code %q", tt.json, err, appErrors.CodeMalformedRelease)
			}
		})
	}
}

func TestExtractReleaseInvalidTag(t *testing.T) {
	_, err := ExtractRelease(gjson.Parse(`{"tag_name":"latest","name":"Latest"}`))
	if !appErrors.IsCode(err, appErrors.CodeInvalidVersion) {
		t.Fatalf("error = %v, want code %q", err, appErrors.CodeInvalidVersion)
	}
}

func TestExtractLatest(t *testing.T) {
	items := gjson.Parse(`[
		{"tag_name":"v1.2.0","name":"1.2.0"},
		{"tag_name":"v1.10.0","name":"1.10.0"},
		{"tag_name":"v2.0.0","name":"2.0.0","draft":true},
		{"name":"no tag"},
		{"tag_name":"v1.9.9","name":"1.9.9"}
	]`).Array()

	rel, err := ExtractLatest(items)
	if err != nil {
		t.Fatalf("ExtractLatest() error: %v", err)
	}
	if rel.DisplayName != "1.10.0" {
		t.Errorf("latest = %q, want 1.10.0", rel.DisplayName)
	}

	if _, err := ExtractLatest(nil); !appErrors.IsCode(err, appErrors.CodeMalformedRelease) {
		t.Errorf("ExtractLatest(nil) error = %v, want code %q", err, appErrors.CodeMalformedRelease)
	}
}
