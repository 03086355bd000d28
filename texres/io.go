package texres

// SyncToken identifies the completion point of a transfer dispatched to an
// external I/O engine.
type SyncToken uint64

// IOEngine is an optional zero-copy streaming backend. When one is wired into
// a Manager, it replaces the worker's transfer step for textures already past
// the preload stage- the manager only tracks completion through the texture's
// syncpt.
type IOEngine interface {
	// IsComplete reports whether the transfer identified by token has reached
	// device memory
	IsComplete(token SyncToken) bool

	// Flush submits outstanding transfers. With waitForCompletion false the
	// engine discards rather than completes- the flush-and-discard path used
	// while drop requests are active.
	Flush(waitForCompletion bool)
}
