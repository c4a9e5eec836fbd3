// Package db opens PostgreSQL connections from a credential bundle and
// classifies database errors.
//
// # Connection
//
//	database, err := db.Connect(ctx, db.Config{
//	    Host:        "db",
//	    Port:        5432,
//	    Credentials: bundle, // from the secret store
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close(database)
//
// Connections are scoped to one command invocation and closed on every
// exit path. SQL logging is silent unless Config.Debug is set.
//
// # Errors
//
// Classify maps driver errors onto ErrConnection (unreachable server,
// rejected credentials, dropped connection, timeouts) and ErrConstraint
// (integrity violations, SQLSTATE class 23).
package db
