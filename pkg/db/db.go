package db

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cryoetdb/cryoetdb/pkg/secrets"
)

// DefaultConnectTimeout bounds dialing and the initial ping.
const DefaultConnectTimeout = 10 * time.Second

// Config holds database connection configuration
type Config struct {
	Host    string
	Port    int
	SSLMode string
	// ConnectTimeout bounds dialing and the initial ping
	ConnectTimeout time.Duration
	// Credentials come from the secret store, never from local configuration
	Credentials secrets.Bundle
	// Debug enables gorm SQL logging
	Debug bool
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "db"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	return c
}

// URL returns the postgres:// connection URL including the password.
func (c Config) URL() string {
	c = c.withDefaults()
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	seconds := int(c.ConnectTimeout / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	q.Set("connect_timeout", strconv.Itoa(seconds))

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Credentials.Username, c.Credentials.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Credentials.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Redacted returns URL with the password masked, for logs and errors.
func (c Config) Redacted() string {
	u, err := url.Parse(c.URL())
	if err != nil {
		return ""
	}
	return u.Redacted()
}

// MigrationURL returns URL with the golang-migrate table parameter set.
func (c Config) MigrationURL() string {
	dbURL := c.URL()
	if strings.Contains(dbURL, "?") {
		return dbURL + "&x-migrations-table=schema_migrations"
	}
	return dbURL + "?x-migrations-table=schema_migrations"
}

// Connect opens a connection from the credential bundle and verifies it
// with a bounded ping. Failures are classified as ErrConnection.
func Connect(ctx context.Context, cfg Config) (*gorm.DB, error) {
	cfg = cfg.withDefaults()
	if missing := cfg.Credentials.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: credential bundle lacks %s", ErrConnection, strings.Join(missing, ", "))
	}

	// Default to silent logging unless debug is requested
	logMode := logger.Silent
	if cfg.Debug {
		logMode = logger.Info
	}

	db, err := gorm.Open(
		postgres.New(postgres.Config{
			DSN:                  cfg.URL(),
			PreferSimpleProtocol: true, // disables implicit prepared statement usage
		}),
		&gorm.Config{
			Logger:                 logger.Default.LogMode(logMode),
			DisableAutomaticPing:   true,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Redacted(), Classify(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Redacted(), Classify(err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Redacted(), asConnection(err))
	}

	return db.WithContext(ctx), nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
