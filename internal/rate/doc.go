// Package rate implements Redis-backed fixed-window counters.
//
// # Window semantics
//
// Route admission uses one counter per (class, client) key. The first admitted
// request creates the key with a TTL equal to the window; the window resets
// when the key expires. The check and increment run in one Lua script, so the
// stored count never exceeds the ceiling and concurrent callers on one key
// cannot overshoot it. Boundary bursts of up to twice the ceiling across two
// adjacent windows are accepted.
//
// Key prefixes:
//   - <prefix>:rl:<class>:<client> route admission window
//   - <prefix>:al:<identifier>    failed logins per identifier
//   - <prefix>:ali:<ip>           failed logins per IP
//
// # What this package must NOT do
//
//   - Block or sleep on behalf of the caller.
//   - Write HTTP responses; enforcement belongs to the caller.
package rate
