// Package bootstrap implements the two-phase credential protocol.
//
// On the first run of a deployment the secret store holds nothing at the
// configured path. Provision reads the database credentials from the
// environment and stores them; that run ends there. Every later run finds
// the bundle, and Require returns it so ingestion and queries can connect.
//
// The state is always read back from the store. Two concurrent first runs
// can race on Put; the loser compares what it wanted to store with what is
// stored and either becomes a no-op or fails with ErrCredentialDrift.
package bootstrap
