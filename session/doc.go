// Package session owns the lifecycle of authentication grants. A session
// moves from Active to Revoked (explicitly) or to Expired (implicitly,
// by the clock); there are no other transitions. Rotation never mutates
// a session in place: the old one is revoked and a successor created in
// a single transactional store operation, preserving an auditable chain.
package session
