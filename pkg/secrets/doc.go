// Package secrets provides access to the remote secret service that holds the
// database credential bundle.
//
// The Store interface decouples the credential bootstrapper from the concrete
// backend. Two backends are available:
//
//   - VaultStore: HashiCorp Vault KV version 2
//   - ConjurStore: a Conjur server's variable API
//
// # Usage
//
//	store, err := secrets.NewVaultStore(secrets.VaultConfig{Address: addr, Token: token})
//	bundle, err := store.Get(ctx, "cryoet")
//	if err != nil {
//	    if errors.Is(err, secrets.ErrSecretNotFound) {
//	        // First run: nothing provisioned yet
//	    }
//	}
//
// Puts are create-only. A second Put to the same path fails with
// ErrSecretExists so stored credentials never drift.
package secrets
