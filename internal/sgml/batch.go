package sgml

import (
	"context"
	"fmt"
)

// Handler processes one document during batch iteration. An error stops
// the batch and propagates to the ProcessBatch caller.
type Handler func(doc *Document) error

// ProcessBatch advances the cursor to the 0-based start index by
// sequential skipping, then invokes the handler for up to count documents
// or until the stream is exhausted. Documents handled before a failure
// stay handled; this is an I/O convenience layer, not a transaction
// boundary. Cancellation is checked between documents.
//
// Cursors are forward-only: asking for a start the cursor has already
// streamed past fails with ErrSequence.
func ProcessBatch(ctx context.Context, c *Cursor, start, count int, handler Handler) error {
	if start < 0 || count < 0 {
		return fmt.Errorf("%w: negative start or count", ErrInvalidArgument)
	}
	if c.Yielded() > start {
		return fmt.Errorf("%w: cursor already advanced past document %d (yielded %d)", ErrSequence, start, c.Yielded())
	}

	for c.Yielded() < start {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Advance() == nil {
			return nil // fewer documents than start; nothing to do
		}
	}

	for handled := 0; handled < count; handled++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := c.Advance()
		if doc == nil {
			return nil
		}
		if err := handler(doc); err != nil {
			return fmt.Errorf("batch handler failed on document %d: %w", doc.Seq, err)
		}
	}
	return nil
}
