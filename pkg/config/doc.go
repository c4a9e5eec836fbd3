// Package config provides configuration management for the pipeline.
//
// Configuration is layered: built-in defaults, then the YAML file at
// $CRYOET_CONFIG_PATH/cryoet.yml (default /etc/cryoet/cryoet.yml), then
// environment variables. The source of every attribute is tracked and
// shown by `cryoetctl configuration show`.
//
// # Key Configuration Options
//
//   - VAULT_ADDR, VAULT_TOKEN: Vault endpoint and token
//   - CRYOET_SECRET_PATH: where the credential bundle is stored
//   - DB_HOST, DB_PORT: Postgres endpoint
//   - CRYOET_DATA_DIR: directory holding labels.csv and volumes/
//   - CRYOET_INGEST_POLICY: append or replace
//   - CRYOET_LOG_LEVEL: Logging verbosity
//
// The database credentials themselves are never configured here. They are
// read from POSTGRES_USER, POSTGRES_PASSWORD and POSTGRES_DB only by the
// bootstrap phase and afterwards come from the secret store.
package config
