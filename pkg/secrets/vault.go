package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	vault "github.com/hashicorp/vault/api"
)

// Vault auth methods
const (
	VaultAuthToken = "token"
	VaultAuthJWT   = "jwt"
)

// DefaultTimeout bounds every request to the secret service.
const DefaultTimeout = 10 * time.Second

// Ensure VaultStore implements Store
var _ Store = (*VaultStore)(nil)

// VaultConfig holds the settings for a Vault KV v2 backend
type VaultConfig struct {
	// Address is the Vault server URL, e.g. http://vault:8200
	Address string
	// Mount is the KV v2 mount path (default "secret")
	Mount string
	// AuthMethod is "token" (default) or "jwt"
	AuthMethod string
	// Token is used with the token auth method
	Token string
	// JWTRole and JWTFile are used with the jwt auth method
	JWTRole  string
	JWTFile  string
	JWTMount string
	// Timeout bounds each request (default DefaultTimeout)
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests
	HTTPClient *http.Client
}

// VaultStore implements Store on HashiCorp Vault's KV v2 engine
type VaultStore struct {
	client *vault.Client
	cfg    VaultConfig

	loginMu  sync.Mutex
	loggedIn bool
	now      func() time.Time
}

// NewVaultStore creates a new VaultStore
func NewVaultStore(cfg VaultConfig) (*VaultStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("vault address is required")
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.AuthMethod == "" {
		cfg.AuthMethod = VaultAuthToken
	}
	if cfg.JWTMount == "" {
		cfg.JWTMount = "jwt"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	switch cfg.AuthMethod {
	case VaultAuthToken:
		if cfg.Token == "" {
			return nil, errors.New("vault token is required for token auth")
		}
	case VaultAuthJWT:
		if cfg.JWTRole == "" || cfg.JWTFile == "" {
			return nil, errors.New("vault jwt auth requires a role and a token file")
		}
	default:
		return nil, fmt.Errorf("unknown vault auth method: %s", cfg.AuthMethod)
	}

	vc := vault.DefaultConfig()
	vc.Address = cfg.Address
	vc.Timeout = cfg.Timeout
	// Retries are the caller's decision; the pipeline never retries on its own.
	vc.MaxRetries = 0
	if cfg.HTTPClient != nil {
		vc.HttpClient = cfg.HTTPClient
	}

	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.AuthMethod == VaultAuthToken {
		client.SetToken(cfg.Token)
	} else {
		client.ClearToken()
	}

	return &VaultStore{client: client, cfg: cfg, now: time.Now}, nil
}

// Get retrieves the bundle stored at path.
func (s *VaultStore) Get(ctx context.Context, path string) (Bundle, error) {
	if err := s.login(ctx); err != nil {
		return Bundle{}, err
	}

	secret, err := s.client.KVv2(s.cfg.Mount).Get(ctx, path)
	if err != nil {
		return Bundle{}, mapVaultError("read "+path, err)
	}
	// A soft-deleted version comes back without data.
	if secret == nil || len(secret.Data) == 0 {
		return Bundle{}, ErrSecretNotFound
	}

	return BundleFromMap(secret.Data)
}

// Put stores the bundle at path with check-and-set 0, so Vault itself
// refuses to overwrite an existing secret.
func (s *VaultStore) Put(ctx context.Context, path string, bundle Bundle) error {
	if err := s.login(ctx); err != nil {
		return err
	}

	data := make(map[string]interface{}, 3)
	for k, v := range bundle.Map() {
		data[k] = v
	}

	if _, err := s.client.KVv2(s.cfg.Mount).Put(ctx, path, data, vault.WithCheckAndSet(0)); err != nil {
		return mapVaultError("write "+path, err)
	}
	return nil
}

// Health reports whether Vault is initialized and unsealed.
func (s *VaultStore) Health(ctx context.Context) error {
	health, err := s.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return unavailable("health", err)
	}
	if !health.Initialized {
		return fmt.Errorf("%w: vault is not initialized", ErrSecretStoreUnavailable)
	}
	if health.Sealed {
		return fmt.Errorf("%w: vault is sealed", ErrSecretStoreUnavailable)
	}
	return nil
}

func (s *VaultStore) login(ctx context.Context) error {
	if s.cfg.AuthMethod != VaultAuthJWT {
		return nil
	}

	// Only a successful login is kept. A failed one is retried on the next
	// call, re-reading the token file in case it was rotated.
	s.loginMu.Lock()
	defer s.loginMu.Unlock()
	if s.loggedIn {
		return nil
	}

	raw, err := os.ReadFile(s.cfg.JWTFile)
	if err != nil {
		return fmt.Errorf("failed to read jwt file: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if err := checkJWTExpiry(token, s.now()); err != nil {
		return err
	}

	secret, err := s.client.Logical().WriteWithContext(ctx, "auth/"+s.cfg.JWTMount+"/login", map[string]interface{}{
		"role": s.cfg.JWTRole,
		"jwt":  token,
	})
	if err != nil {
		return mapVaultError("jwt login", err)
	}
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return fmt.Errorf("%w: jwt login returned no client token", ErrSecretStoreUnavailable)
	}
	s.client.SetToken(secret.Auth.ClientToken)
	s.loggedIn = true
	return nil
}

// checkJWTExpiry rejects an already expired token before it is sent to Vault.
// The signature is Vault's to verify.
func checkJWTExpiry(token string, now time.Time) error {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return fmt.Errorf("malformed jwt: %w", err)
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(now) {
		return fmt.Errorf("jwt expired at %s", claims.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func mapVaultError(op string, err error) error {
	if errors.Is(err, vault.ErrSecretNotFound) {
		return ErrSecretNotFound
	}

	var respErr *vault.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == http.StatusNotFound:
			return ErrSecretNotFound
		case respErr.StatusCode == http.StatusBadRequest && isCASMismatch(respErr.Errors):
			return fmt.Errorf("%w: %s", ErrSecretExists, op)
		case respErr.StatusCode == http.StatusUnauthorized,
			respErr.StatusCode == http.StatusForbidden,
			respErr.StatusCode == http.StatusTooManyRequests,
			respErr.StatusCode >= 500:
			return unavailable(op, err)
		default:
			return fmt.Errorf("vault %s: %w", op, err)
		}
	}

	return unavailable(op, err)
}

func isCASMismatch(errs []string) bool {
	for _, e := range errs {
		if strings.Contains(e, "check-and-set") {
			return true
		}
	}
	return false
}
