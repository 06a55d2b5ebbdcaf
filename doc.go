// Package identity is the identity and session lifecycle engine behind
// taskloom: account registration, credential login, refresh-token
// rotation, password reset, and email verification.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Architecture boundaries
//
// identity is the orchestration surface. It exposes [Engine], [Builder],
// [Config], and the result value types. The subsystems live in their own
// packages: password (argon2id hashing), token (signed and opaque token
// issuance), session (Redis-backed refresh sessions and the revocation
// list), and store (relational persistence behind narrow per-entity
// interfaces).
//
// # Session model
//
// One live refresh session per user, keyed by the user's external id. A
// new login overwrites the previous session; a plain refresh does not
// rotate the refresh token. Cache and database are eventually consistent
// by design: a cache miss means the user logs in again.
package identity
