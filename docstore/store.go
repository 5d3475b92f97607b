package docstore

import (
	"context"
	"fmt"
	"time"
)

// Well-known collections.
const (
	CollectionBrands       = "brands"
	CollectionAgents       = "agents"
	CollectionAgentLogs    = "agent_logs"
	CollectionThreads      = "threads"
	CollectionPipelineRuns = "pipeline_runs"
	CollectionShared       = "shared_context"
	CollectionMailboxes    = "mailboxes"
	CollectionSettings     = "tenant_settings"
	CollectionCatalogs     = "catalogs"
)

// Key addresses a document.
type Key struct {
	Collection string
	ID         string
}

// String renders "collection/id".
func (k Key) String() string { return k.Collection + "/" + k.ID }

// Validate rejects keys with empty parts.
func (k Key) Validate() error {
	if k.Collection == "" || k.ID == "" {
		return fmt.Errorf("docstore: invalid key %q", k.String())
	}

	return nil
}

// Document is a stored JSON object. Version starts at 1 on creation and is
// incremented by every successful write.
type Document struct {
	Key       Key
	Data      map[string]any
	Version   int64
	UpdatedAt time.Time
}

// Update describes a single atomic document update. Set replaces top-level
// fields; ArrayUnion appends values to top-level arrays, skipping values that
// are already present. When ExpectedVersion is non-nil the update only applies
// if the stored version matches, otherwise it fails with ErrConflict.
type Update struct {
	Set             map[string]any
	ArrayUnion      map[string][]any
	ExpectedVersion *int64
}

// WriteOptions configures Set.
type WriteOptions struct {
	// IfVersion makes the write conditional. Zero means "must not exist".
	IfVersion *int64
}

// IfVersion makes Set conditional on the stored version.
func IfVersion(v int64) func(o *WriteOptions) {
	return func(o *WriteOptions) { o.IfVersion = &v }
}

// IfAbsent makes Set fail with ErrConflict when the document already exists.
func IfAbsent() func(o *WriteOptions) { return IfVersion(0) }

// Store is the document store contract.
type Store interface {
	// Get returns the document or an error matching core.ErrNotFound.
	Get(ctx context.Context, key Key) (Document, error)
	// Set writes the whole document and returns the new version.
	Set(ctx context.Context, key Key, data map[string]any, optFns ...func(o *WriteOptions)) (int64, error)
	// Update applies u to an existing document and returns the new version.
	Update(ctx context.Context, key Key, u Update) (int64, error)
	// Close releases resources.
	Close() error
}
