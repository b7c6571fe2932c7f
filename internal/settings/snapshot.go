// Package settings keeps the service's user-editable settings file and an
// in-memory snapshot of it in sync.
//
// The file is plain JSON. Edits made outside the process are picked up by a
// file watcher; deleting the file resets the snapshot to defaults. Subscribers
// are told about every change, including the ones made through Save.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// FileName is the settings file name inside DirName.
	FileName = "settings.json"
	// DirName is the directory under the user config dir holding FileName.
	DirName = "updatesvc"
)

// Snapshot is one immutable view of the settings file.
type Snapshot struct {
	AutomaticUpdatesDisabled bool   `json:"automaticUpdatesDisabled"`
	AutomaticUpdateURL       string `json:"automaticUpdateUrl"`
}

// DefaultSnapshot returns the settings used when no file exists.
func DefaultSnapshot() Snapshot {
	return Snapshot{}
}

// Reason says why a change event was raised.
type Reason int

const (
	// ReasonSaved follows a successful Save or Update.
	ReasonSaved Reason = iota
	// ReasonReloaded follows an external edit. The snapshot may be unchanged
	// if the new content could not be read.
	ReasonReloaded
	// ReasonReset follows the file being deleted or moved away.
	ReasonReset
)

// String returns the string representation of a Reason.
func (r Reason) String() string {
	switch r {
	case ReasonSaved:
		return "saved"
	case ReasonReloaded:
		return "reloaded"
	case ReasonReset:
		return "reset"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Event is delivered to subscribers after each change.
type Event struct {
	Reason   Reason
	Snapshot Snapshot
}

// DefaultPath returns <user config dir>/updatesvc/settings.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("determine user config dir: %w", err)
	}
	return filepath.Join(dir, DirName, FileName), nil
}
