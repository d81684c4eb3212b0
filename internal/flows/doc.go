// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssue, RunRefresh, RunAuthenticate, RunLogin,
// RunLogout) accepts a typed dependency struct and returns a result carrying
// a FailureKind instead of a host error. The Engine maps kinds to its own
// sentinel errors, metrics and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the family registry, the token manager
// and the user lookup. They do NOT own any of these resources; ownership
// stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import estateauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency fields.
package flows
