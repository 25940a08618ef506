// Package trace records what a rewrite run did, span by span.
//
// Enable tracing via command-line flags:
//
//	modpatch --trace=- --trace-level=detail rewrite --host Host.mpch --rules rules.toml mod.mpch
//
// Tracers:
//
//   - Nop: discards everything
//   - StreamTracer: writes each event to a buffered file or stderr
//   - RingTracer: keeps the last events for a dump after a defect
//   - MultiTracer: fans out to several tracers
//
// Scopes, coarsest first: driver (whole batch), module (one pass),
// method (one method body), site (one rewritten reference).
//
// Tracers travel with the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeModule, "rewrite", 0)
//	defer span.End("")
package trace
