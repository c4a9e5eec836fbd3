package audit

import (
	"database/sql"
	"encoding/json"
	"os"
	"time"
)

// Store persists audit messages to the pipeline_audit table
type Store struct {
	db      *sql.DB
	appName string
}

// NewStoreWithDB creates a store on an existing database connection.
// The connection's lifetime is owned by the caller.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db, appName: "cryoet"}
}

// Save persists an audit event to the database
func (s *Store) Save(event Event) error {
	if s == nil || s.db == nil {
		return nil
	}

	hostname, _ := os.Hostname()
	sdataJSON, err := json.Marshal(event.StructuredData())
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO pipeline_audit (facility, severity, timestamp, hostname, appname, procid, msgid, sdata, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		event.Facility(),
		int(event.Severity()),
		time.Now().UTC(),
		hostname,
		s.appName,
		os.Getpid(),
		event.MessageID(),
		sdataJSON,
		event.Message(),
	)
	return err
}
