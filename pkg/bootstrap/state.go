package bootstrap

//go:generate go tool enumer -type State -trimprefix State -transform lower -json -output state.gen.go

// State is the bootstrap state of a deployment. It is always derived from
// what the secret store holds, never from local files or flags.
type State int

const (
	// StateUninitialized means no credential bundle is stored yet.
	StateUninitialized State = iota
	// StateReady means a bundle is stored and can be retrieved.
	StateReady
)

// Outcome is the result of a successful Provision call.
type Outcome string

const (
	OutcomeProvisioned        Outcome = "provisioned"
	OutcomeAlreadyProvisioned Outcome = "already-provisioned"
)
