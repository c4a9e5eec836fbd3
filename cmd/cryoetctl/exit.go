package main

import (
	"errors"

	"github.com/cryoetdb/cryoetdb/pkg/bootstrap"
	"github.com/cryoetdb/cryoetdb/pkg/db"
	"github.com/cryoetdb/cryoetdb/pkg/ingest"
	"github.com/cryoetdb/cryoetdb/pkg/query"
	"github.com/cryoetdb/cryoetdb/pkg/secrets"
)

const (
	exitOK               = 0
	exitFailure          = 1
	exitNotFound         = 2
	exitSecretStore      = 3
	exitCredentialConfig = 4
	exitNotBootstrapped  = 5
	exitDatabase         = 6
)

// errorKind names the class of a fatal error for logs and error reports.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, secrets.ErrSecretStoreUnavailable):
		return "secret_store_unavailable"
	case errors.Is(err, bootstrap.ErrMissingCredentialConfig):
		return "missing_credential_config"
	case errors.Is(err, bootstrap.ErrCredentialDrift):
		return "credential_drift"
	case errors.Is(err, bootstrap.ErrNotBootstrapped):
		return "not_bootstrapped"
	case errors.Is(err, db.ErrConnection):
		return "database_connection"
	case errors.Is(err, db.ErrConstraint):
		return "constraint_violation"
	case errors.Is(err, query.ErrTomogramNotFound),
		errors.Is(err, query.ErrAnnotationNotFound),
		errors.Is(err, ingest.ErrTomogramNotFound):
		return "not_found"
	}
	return "internal"
}

func exitCode(err error) int {
	switch errorKind(err) {
	case "":
		return exitOK
	case "secret_store_unavailable":
		return exitSecretStore
	case "missing_credential_config", "credential_drift":
		return exitCredentialConfig
	case "not_bootstrapped":
		return exitNotBootstrapped
	case "database_connection", "constraint_violation":
		return exitDatabase
	case "not_found":
		return exitNotFound
	}
	return exitFailure
}
