package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cyberark/conjur-api-go/conjurapi"
	"github.com/cyberark/conjur-api-go/conjurapi/authn"
	"github.com/cyberark/conjur-api-go/conjurapi/response"
)

// Ensure ConjurStore implements Store
var _ Store = (*ConjurStore)(nil)

// ConjurConfig holds the settings for a Conjur backend
type ConjurConfig struct {
	// URL is the Conjur appliance URL
	URL string
	// Account is the Conjur organization account
	Account string
	// Login and APIKey identify the host or user the pipeline runs as
	Login  string
	APIKey string
	// Timeout bounds each request (default DefaultTimeout)
	Timeout time.Duration
}

// ConjurStore implements Store on Conjur variables. The bundle is stored as
// a single JSON document in the variable named by the path; the variable must
// already be declared by policy.
type ConjurStore struct {
	client *conjurapi.Client
}

// NewConjurStore creates a new ConjurStore
func NewConjurStore(cfg ConjurConfig) (*ConjurStore, error) {
	if cfg.URL == "" || cfg.Account == "" || cfg.Login == "" || cfg.APIKey == "" {
		return nil, errors.New("conjur url, account, login and api key are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	timeout := int(cfg.Timeout / time.Second)
	if timeout < 1 {
		timeout = 1
	}

	client, err := conjurapi.NewClientFromKey(conjurapi.Config{
		Account:      cfg.Account,
		ApplianceURL: strings.TrimRight(cfg.URL, "/"),
		HttpTimeout:  timeout,
	}, authn.LoginPair{Login: cfg.Login, APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("conjur client: %w", err)
	}

	return &ConjurStore{client: client}, nil
}

// Get retrieves the bundle stored in the variable named by path.
func (s *ConjurStore) Get(ctx context.Context, path string) (Bundle, error) {
	if err := ctx.Err(); err != nil {
		return Bundle{}, unavailable("fetch "+path, err)
	}

	value, err := s.client.RetrieveSecret(path)
	if err != nil {
		var cerr *response.ConjurError
		if errors.As(err, &cerr) && cerr.Code == http.StatusNotFound {
			return Bundle{}, ErrSecretNotFound
		}
		return Bundle{}, conjurError("fetch "+path, err)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(value, &data); err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrMalformedSecret, err)
	}
	return BundleFromMap(data)
}

// Put stores the bundle unless the variable already holds a value. Conjur
// has no create-only write, so existence is checked first.
func (s *ConjurStore) Put(ctx context.Context, path string, bundle Bundle) error {
	_, err := s.Get(ctx, path)
	switch {
	case err == nil, errors.Is(err, ErrMalformedSecret):
		return fmt.Errorf("%w: %s", ErrSecretExists, path)
	case !errors.Is(err, ErrSecretNotFound):
		return err
	}

	body, err := json.Marshal(bundle.Map())
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return unavailable("store "+path, err)
	}
	if err := s.client.AddSecret(path, string(body)); err != nil {
		var cerr *response.ConjurError
		if errors.As(err, &cerr) && cerr.Code == http.StatusNotFound {
			return fmt.Errorf("conjur variable %q is not declared in policy", path)
		}
		return conjurError("store "+path, err)
	}
	return nil
}

// Health authenticates and asks Conjur who we are.
func (s *ConjurStore) Health(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return unavailable("health", err)
	}
	if _, err := s.client.WhoAmI(); err != nil {
		return conjurError("health", err)
	}
	return nil
}

// conjurError treats auth failures, server errors and transport failures as
// the service being unavailable to us; other API errors are reported as is.
func conjurError(op string, err error) error {
	var cerr *response.ConjurError
	if !errors.As(err, &cerr) {
		return unavailable(op, err)
	}
	if cerr.Code == http.StatusUnauthorized || cerr.Code == http.StatusForbidden || cerr.Code >= 500 {
		return fmt.Errorf("%w: %s: status %d", ErrSecretStoreUnavailable, op, cerr.Code)
	}
	return fmt.Errorf("conjur %s: %w", op, err)
}
