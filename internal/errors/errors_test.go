package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  Error
		want string
	}{
		{"message only", New(CodeFetchFailed, "fetch failed", nil), "fetch failed"},
		{"message and cause", New(CodeFetchFailed, "fetch failed", fmt.Errorf("boom")), "fetch failed: boom"},
		{"cause only", New(CodeConfigIO, "", fmt.Errorf("disk full")), "disk full"},
		{"code only", New(CodeMalformedRelease, "", nil), "malformed_release"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCodeOfWalksChain(t *testing.T) {
	base := New(CodeInvalidVersion, "invalid version format: abc", nil)
	wrapped := fmt.Errorf("parse latest version: %w", base)

	if got := CodeOf(wrapped); got != CodeInvalidVersion {
		t.Fatalf("CodeOf() = %q, want %q", got, CodeInvalidVersion)
	}
	if !IsCode(wrapped, CodeInvalidVersion) {
		t.Fatal("IsCode() should match wrapped code")
	}
	if IsCode(wrapped, CodeFetchFailed) {
		t.Fatal("IsCode() should not match a different code")
	}
	if got := CodeOf(fmt.Errorf("plain")); got != CodeUnknown {
		t.Fatalf("CodeOf(plain) = %q, want %q", got, CodeUnknown)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	err := New(CodeFetchFailed, "fetch failed", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("errors.Is should see the wrapped cause")
	}
}
