package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// ErrSecretNotFound is returned when nothing is stored at the requested path
var ErrSecretNotFound = errors.New("secret not found")

// ErrSecretStoreUnavailable is returned on connection, timeout or auth
// failures talking to the secret service
var ErrSecretStoreUnavailable = errors.New("secret store unavailable")

// ErrSecretExists is returned when a Put targets a path that already holds a secret
var ErrSecretExists = errors.New("secret already exists")

// ErrMalformedSecret is returned when the stored secret lacks bundle keys
var ErrMalformedSecret = errors.New("stored secret is not a credential bundle")

// Keys under which the bundle fields are stored.
const (
	KeyUser     = "POSTGRES_USER"
	KeyPassword = "POSTGRES_PASSWORD"
	KeyDatabase = "POSTGRES_DB"
)

// DefaultPath is the path the bundle is stored under unless configured otherwise.
const DefaultPath = "cryoet"

// Bundle holds the values required to open a database connection.
type Bundle struct {
	Username string
	Password string
	Database string
}

// Missing returns the storage keys of all empty fields, sorted.
func (b Bundle) Missing() []string {
	var missing []string
	if strings.TrimSpace(b.Username) == "" {
		missing = append(missing, KeyUser)
	}
	if b.Password == "" {
		missing = append(missing, KeyPassword)
	}
	if strings.TrimSpace(b.Database) == "" {
		missing = append(missing, KeyDatabase)
	}
	sort.Strings(missing)
	return missing
}

// Map returns the bundle in its stored key/value layout.
func (b Bundle) Map() map[string]string {
	return map[string]string{
		KeyUser:     b.Username,
		KeyPassword: b.Password,
		KeyDatabase: b.Database,
	}
}

// String never includes the password.
func (b Bundle) String() string {
	return fmt.Sprintf("user=%s database=%s", b.Username, b.Database)
}

// LogValue implements slog.LogValuer and never includes the password.
func (b Bundle) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user", b.Username),
		slog.String("database", b.Database),
	)
}

// BundleFromMap builds a bundle from a stored key/value map.
func BundleFromMap(data map[string]interface{}) (Bundle, error) {
	get := func(key string) string {
		if v, ok := data[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}

	b := Bundle{
		Username: get(KeyUser),
		Password: get(KeyPassword),
		Database: get(KeyDatabase),
	}
	if missing := b.Missing(); len(missing) > 0 {
		return Bundle{}, fmt.Errorf("%w: missing %s", ErrMalformedSecret, strings.Join(missing, ", "))
	}
	return b, nil
}

// Store abstracts the remote secret service.
type Store interface {
	// Get retrieves the bundle stored at path.
	// Returns ErrSecretNotFound if nothing is stored there.
	Get(ctx context.Context, path string) (Bundle, error)

	// Put stores the bundle at path. It never overwrites; an existing
	// secret yields ErrSecretExists.
	Put(ctx context.Context, path string, bundle Bundle) error

	// Health reports whether the service is ready to serve requests.
	Health(ctx context.Context) error
}

// WaitReady polls the store's health until it succeeds or attempts run out.
func WaitReady(ctx context.Context, store Store, attempts int, interval time.Duration, onRetry func(attempt int, err error)) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		if lastErr = store.Health(ctx); lastErr == nil {
			return nil
		}
		if onRetry != nil {
			onRetry(i, lastErr)
		}
		if i == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrSecretStoreUnavailable, ctx.Err())
		case <-time.After(interval):
		}
	}

	if errors.Is(lastErr, ErrSecretStoreUnavailable) {
		return lastErr
	}
	return fmt.Errorf("%w: not ready after %d attempts: %v", ErrSecretStoreUnavailable, attempts, lastErr)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrSecretStoreUnavailable, op, err)
}
