// Package sink delivers incremental edits to the external text target.
// The relay applies each command-buffer change as a small delete/append
// pair so the target only ever rewrites the suffix that actually changed.
package sink

import (
	"voicerelay-server-go/internal/domain/diff"
)

// Sink is an external text target. Implementations must be safe for
// concurrent use; the relay applies edits from its own loop while the
// control API reads previews.
type Sink interface {
	// Name identifies the driver.
	Name() string
	// Apply performs one incremental edit against the current content.
	Apply(edit diff.Edit) error
	// Clear empties the target.
	Clear() error
	// Commit asks the target to submit its current content, for example by
	// simulating an enter key press. The field is empty afterwards.
	Commit() error
	// Preview returns the text the sink currently holds.
	Preview() string
}
