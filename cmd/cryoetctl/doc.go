// Command cryoetctl runs the CryoET annotation pipeline.
//
// # Quick Start
//
//	# Create the schema
//	cryoetctl db migrate
//
//	# First run: store the credential bundle in the secret store
//	POSTGRES_USER=cryo POSTGRES_PASSWORD=... POSTGRES_DB=cryoet cryoetctl bootstrap
//
//	# Ingest /app/data/labels.csv and /app/data/volumes/*.npy
//	cryoetctl ingest
//
//	# Query
//	cryoetctl query count-annotations --tomo-name TS_01
//	cryoetctl query find-rich-tomograms --min-annotations 20
//	cryoetctl serve
//
// "cryoetctl run" keeps the two-phase behavior of a single entry point: the
// first invocation provisions and stops, later invocations ingest.
//
// # Environment Variables
//
//   - VAULT_ADDR, VAULT_TOKEN: Vault backend (default http://vault:8200, token "root")
//   - DB_HOST, DB_PORT: PostgreSQL endpoint (default db:5432)
//   - CRYOET_DATA_DIR: dataset directory (default /app/data)
//   - CRYOET_LOG_LEVEL: trace, debug, info, warn, error
//   - CRYOET_CONFIG_PATH: directory holding cryoet.yml (default /etc/cryoet)
//   - CRYOET_API_JWT_SECRET: require bearer tokens on the query API ("cryoetctl token" issues them)
//   - SENTRY_DSN: optional error reporting
//
// # Exit Codes
//
//	0 success
//	1 usage or unclassified failure
//	2 tomogram or annotation not found
//	3 secret store unavailable
//	4 missing credential configuration or credential drift
//	5 credentials not bootstrapped
//	6 database connection or constraint error
package main
