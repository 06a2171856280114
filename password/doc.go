// Package password implements the credential digest used for stored
// passwords, OTP code hashes, and refresh-token hashes. The digest is
// PBKDF2-SHA256 with a per-deployment salt, which keeps it deterministic
// for a given deployment: equality against a stored hash is a recompute
// plus a constant-time compare.
package password
