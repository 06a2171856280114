// Package audit carries the engine's audit records to a pluggable sink
// through an asynchronous dispatcher. Emission is fire-and-forget with
// respect to the operation being audited: a full buffer or a slow sink
// increments a drop counter but never fails or delays the caller.
package audit
