package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cryoetdb/cryoetdb/pkg/audit"
	"github.com/cryoetdb/cryoetdb/pkg/logging"
	"github.com/cryoetdb/cryoetdb/pkg/metrics"
	"github.com/cryoetdb/cryoetdb/pkg/secrets"
)

// ErrMissingCredentialConfig is returned when Provision cannot find the
// credential values in the environment.
var ErrMissingCredentialConfig = errors.New("missing credential configuration")

// ErrNotBootstrapped is returned by Require when no bundle is stored yet.
var ErrNotBootstrapped = errors.New("credentials not bootstrapped")

// ErrCredentialDrift is returned when a stored bundle differs from the one
// the environment describes.
var ErrCredentialDrift = errors.New("stored credentials differ from environment")

// Env looks up an environment variable. os.LookupEnv satisfies it.
type Env func(key string) (string, bool)

// Result is what Run reports to its caller.
type Result struct {
	// State observed at the start of the run.
	State State
	// Provisioned is true when this run stored the bundle. The caller must
	// stop without ingesting.
	Provisioned bool
	Outcome     Outcome
	// Bundle is set when State is StateReady.
	Bundle secrets.Bundle
}

// Bootstrapper drives the credential state machine against one secret path.
type Bootstrapper struct {
	store   secrets.Store
	path    string
	env     Env
	logger  *slog.Logger
	audit   audit.Sink
	metrics *metrics.PipelineMetrics
}

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithEnv replaces os.LookupEnv.
func WithEnv(env Env) Option {
	return func(b *Bootstrapper) { b.env = env }
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bootstrapper) { b.logger = logger }
}

func WithAudit(sink audit.Sink) Option {
	return func(b *Bootstrapper) { b.audit = sink }
}

func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(b *Bootstrapper) { b.metrics = m }
}

// New returns a Bootstrapper for the bundle stored at path.
func New(store secrets.Store, path string, opts ...Option) *Bootstrapper {
	if path == "" {
		path = secrets.DefaultPath
	}
	b := &Bootstrapper{
		store:  store,
		path:   path,
		env:    os.LookupEnv,
		logger: logging.Discard(),
		audit:  audit.Discard,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Path returns the secret path the bootstrapper operates on.
func (b *Bootstrapper) Path() string {
	return b.path
}

// Detect reads the store and derives the current state.
func (b *Bootstrapper) Detect(ctx context.Context) (State, secrets.Bundle, error) {
	bundle, err := b.store.Get(ctx, b.path)
	switch {
	case err == nil:
		b.audit.Log(audit.CredentialFetchEvent{Path: b.path, Found: true, Success: true})
		b.logger.Debug("credential bundle found", "path", b.path, "state", StateReady)
		return StateReady, bundle, nil
	case errors.Is(err, secrets.ErrSecretNotFound):
		b.audit.Log(audit.CredentialFetchEvent{Path: b.path, Found: false, Success: true})
		b.logger.Debug("no credential bundle stored", "path", b.path, "state", StateUninitialized)
		return StateUninitialized, secrets.Bundle{}, nil
	default:
		b.audit.Log(audit.CredentialFetchEvent{Path: b.path, Success: false, ErrorMessage: err.Error()})
		return StateUninitialized, secrets.Bundle{}, fmt.Errorf("failed to detect bootstrap state: %w", err)
	}
}

// Provision performs the first-run phase: it stores the bundle described by
// POSTGRES_USER, POSTGRES_PASSWORD and POSTGRES_DB. A bundle that is already
// stored and identical makes Provision a no-op.
func (b *Bootstrapper) Provision(ctx context.Context) (Outcome, error) {
	state, current, err := b.Detect(ctx)
	if err != nil {
		return "", err
	}
	return b.provisionFrom(ctx, state, current)
}

func (b *Bootstrapper) provisionFrom(ctx context.Context, state State, current secrets.Bundle) (Outcome, error) {
	desired, err := b.bundleFromEnv()
	if err != nil {
		b.fail(state, err)
		return "", err
	}

	if state == StateUninitialized {
		err = b.store.Put(ctx, b.path, desired)
		switch {
		case err == nil:
			b.logger.Info("credential bundle provisioned", "path", b.path, "state", state, "bundle", desired)
			b.audit.Log(audit.BootstrapEvent{Path: b.path, Outcome: string(OutcomeProvisioned), Success: true})
			b.metrics.RecordBootstrap(state.String(), string(OutcomeProvisioned))
			return OutcomeProvisioned, nil
		case errors.Is(err, secrets.ErrSecretExists):
			// Another bootstrap stored a bundle between Detect and Put.
			b.logger.Warn("credential bundle appeared concurrently", "path", b.path)
			current, err = b.store.Get(ctx, b.path)
			if err != nil {
				err = fmt.Errorf("failed to re-read credential bundle: %w", err)
				b.fail(state, err)
				return "", err
			}
		default:
			err = fmt.Errorf("failed to store credential bundle: %w", err)
			b.fail(state, err)
			return "", err
		}
	}

	if current != desired {
		err = fmt.Errorf("%w at %s", ErrCredentialDrift, b.path)
		b.fail(state, err)
		return "", err
	}

	b.logger.Info("credential bundle already provisioned", "path", b.path, "state", state)
	b.audit.Log(audit.BootstrapEvent{Path: b.path, Outcome: string(OutcomeAlreadyProvisioned), Success: true})
	b.metrics.RecordBootstrap(state.String(), string(OutcomeAlreadyProvisioned))
	return OutcomeAlreadyProvisioned, nil
}

// Require returns the stored bundle, or ErrNotBootstrapped when the
// deployment has not been provisioned.
func (b *Bootstrapper) Require(ctx context.Context) (secrets.Bundle, error) {
	state, bundle, err := b.Detect(ctx)
	if err != nil {
		return secrets.Bundle{}, err
	}
	if state != StateReady {
		return secrets.Bundle{}, fmt.Errorf("%w: nothing stored at %s, run bootstrap first", ErrNotBootstrapped, b.path)
	}
	b.metrics.RecordBootstrap(state.String(), "retrieved")
	return bundle, nil
}

// Run is the single entry point used by the run command. An uninitialized
// deployment is provisioned and the result tells the caller to stop; a
// ready one yields the stored bundle.
func (b *Bootstrapper) Run(ctx context.Context) (Result, error) {
	state, bundle, err := b.Detect(ctx)
	if err != nil {
		return Result{}, err
	}

	b.logger.Info("bootstrap phase", "path", b.path, "state", state)

	if state == StateReady {
		b.metrics.RecordBootstrap(state.String(), "retrieved")
		return Result{State: state, Bundle: bundle}, nil
	}

	outcome, err := b.provisionFrom(ctx, state, bundle)
	if err != nil {
		return Result{State: state}, err
	}
	return Result{State: state, Provisioned: true, Outcome: outcome}, nil
}

func (b *Bootstrapper) bundleFromEnv() (secrets.Bundle, error) {
	get := func(key string) string {
		v, _ := b.env(key)
		return v
	}
	bundle := secrets.Bundle{
		Username: get(secrets.KeyUser),
		Password: get(secrets.KeyPassword),
		Database: get(secrets.KeyDatabase),
	}
	if missing := bundle.Missing(); len(missing) > 0 {
		return secrets.Bundle{}, fmt.Errorf("%w: %s not set", ErrMissingCredentialConfig, strings.Join(missing, ", "))
	}
	return bundle, nil
}

func (b *Bootstrapper) fail(state State, err error) {
	b.logger.Error("bootstrap failed", "path", b.path, "state", state, "error", err)
	b.audit.Log(audit.BootstrapEvent{Path: b.path, Success: false, ErrorMessage: err.Error()})
	b.metrics.RecordBootstrap(state.String(), "failed")
}
