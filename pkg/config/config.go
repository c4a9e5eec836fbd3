package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "/etc/cryoet"
	ConfigFileName    = "cryoet.yml"
)

// Attribute sources.
const (
	SourceDefault     = "default"
	SourceFile        = "file"
	SourceEnvironment = "environment"
)

// Secret backends.
const (
	BackendVault  = "vault"
	BackendConjur = "conjur"
)

// Annotation ingestion policies.
const (
	PolicyAppend  = "append"
	PolicyReplace = "replace"
)

// Config holds all pipeline configuration settings
type Config struct {
	// Secret store
	SecretBackend      string
	SecretPath         string
	SecretTimeout      int // seconds
	SecretWaitAttempts int
	SecretWaitInterval int // seconds

	VaultAddr       string
	VaultToken      string
	VaultTokenFile  string
	VaultMount      string
	VaultAuthMethod string
	VaultJWTRole    string
	VaultJWTFile    string
	VaultJWTMount   string

	ConjurURL     string
	ConjurAccount string
	ConjurLogin   string
	ConjurAPIKey  string

	// Database
	DBHost           string
	DBPort           int
	DBSSLMode        string
	DBConnectTimeout int // seconds

	// Dataset and ingestion
	DataDir      string
	LabelsFile   string
	IngestPolicy string
	BatchSize    int
	DatasetID    string
	AutoMigrate  bool

	// Query server
	ListenAddress string
	CacheTTL      int // seconds
	// APIJWTSecret enables bearer-token auth on the query API when set
	APIJWTSecret string

	// Logging, audit and telemetry
	LogLevel       string
	LogFormat      string
	LogFile        string
	AuditEnabled   bool
	AuditPersist   bool
	SentryDSN      string
	Environment    string
	PushgatewayURL string

	// sources tracks where each value came from
	sources map[string]string

	// configFilePath is the path to the config file
	configFilePath string
}

// Attribute represents a configuration attribute with its value and source
type Attribute struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// binding ties an attribute name to its environment variable and field.
type binding struct {
	name   string
	env    string
	secret bool
	str    *string
	num    *int
	flag   *bool
}

func (b binding) set(raw string) error {
	switch {
	case b.str != nil:
		*b.str = raw
	case b.num != nil:
		i, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", b.name, raw)
		}
		*b.num = i
	case b.flag != nil:
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s: %q is not a boolean", b.name, raw)
		}
		*b.flag = v
	}
	return nil
}

func (b binding) value() string {
	switch {
	case b.str != nil:
		return *b.str
	case b.num != nil:
		return strconv.Itoa(*b.num)
	case b.flag != nil:
		return strconv.FormatBool(*b.flag)
	}
	return ""
}

func (c *Config) bindings() []binding {
	return []binding{
		{name: "secret_backend", env: "CRYOET_SECRET_BACKEND", str: &c.SecretBackend},
		{name: "secret_path", env: "CRYOET_SECRET_PATH", str: &c.SecretPath},
		{name: "secret_timeout", env: "CRYOET_SECRET_TIMEOUT", num: &c.SecretTimeout},
		{name: "secret_wait_attempts", env: "CRYOET_SECRET_WAIT_ATTEMPTS", num: &c.SecretWaitAttempts},
		{name: "secret_wait_interval", env: "CRYOET_SECRET_WAIT_INTERVAL", num: &c.SecretWaitInterval},
		{name: "vault_addr", env: "VAULT_ADDR", str: &c.VaultAddr},
		{name: "vault_token", env: "VAULT_TOKEN", secret: true, str: &c.VaultToken},
		{name: "vault_token_file", env: "VAULT_TOKEN_FILE", str: &c.VaultTokenFile},
		{name: "vault_mount", env: "CRYOET_VAULT_MOUNT", str: &c.VaultMount},
		{name: "vault_auth_method", env: "CRYOET_VAULT_AUTH_METHOD", str: &c.VaultAuthMethod},
		{name: "vault_jwt_role", env: "CRYOET_VAULT_JWT_ROLE", str: &c.VaultJWTRole},
		{name: "vault_jwt_file", env: "CRYOET_VAULT_JWT_FILE", str: &c.VaultJWTFile},
		{name: "vault_jwt_mount", env: "CRYOET_VAULT_JWT_MOUNT", str: &c.VaultJWTMount},
		{name: "conjur_url", env: "CONJUR_APPLIANCE_URL", str: &c.ConjurURL},
		{name: "conjur_account", env: "CONJUR_ACCOUNT", str: &c.ConjurAccount},
		{name: "conjur_login", env: "CONJUR_AUTHN_LOGIN", str: &c.ConjurLogin},
		{name: "conjur_api_key", env: "CONJUR_AUTHN_API_KEY", secret: true, str: &c.ConjurAPIKey},
		{name: "db_host", env: "DB_HOST", str: &c.DBHost},
		{name: "db_port", env: "DB_PORT", num: &c.DBPort},
		{name: "db_sslmode", env: "CRYOET_DB_SSLMODE", str: &c.DBSSLMode},
		{name: "db_connect_timeout", env: "CRYOET_DB_CONNECT_TIMEOUT", num: &c.DBConnectTimeout},
		{name: "data_dir", env: "CRYOET_DATA_DIR", str: &c.DataDir},
		{name: "labels_file", env: "CRYOET_LABELS_FILE", str: &c.LabelsFile},
		{name: "ingest_policy", env: "CRYOET_INGEST_POLICY", str: &c.IngestPolicy},
		{name: "batch_size", env: "CRYOET_BATCH_SIZE", num: &c.BatchSize},
		{name: "dataset_id", env: "CRYOET_DATASET_ID", str: &c.DatasetID},
		{name: "auto_migrate", env: "CRYOET_AUTO_MIGRATE", flag: &c.AutoMigrate},
		{name: "listen_address", env: "CRYOET_LISTEN_ADDRESS", str: &c.ListenAddress},
		{name: "cache_ttl", env: "CRYOET_CACHE_TTL", num: &c.CacheTTL},
		{name: "api_jwt_secret", env: "CRYOET_API_JWT_SECRET", secret: true, str: &c.APIJWTSecret},
		{name: "log_level", env: "CRYOET_LOG_LEVEL", str: &c.LogLevel},
		{name: "log_format", env: "CRYOET_LOG_FORMAT", str: &c.LogFormat},
		{name: "log_file", env: "CRYOET_LOG_FILE", str: &c.LogFile},
		{name: "audit_enabled", env: "CRYOET_AUDIT_ENABLED", flag: &c.AuditEnabled},
		{name: "audit_persist", env: "CRYOET_AUDIT_PERSIST", flag: &c.AuditPersist},
		{name: "sentry_dsn", env: "SENTRY_DSN", secret: true, str: &c.SentryDSN},
		{name: "environment", env: "CRYOET_ENVIRONMENT", str: &c.Environment},
		{name: "pushgateway_url", env: "CRYOET_PUSHGATEWAY_URL", str: &c.PushgatewayURL},
	}
}

// newDefault returns a config with default values
func newDefault() *Config {
	return &Config{
		SecretBackend:      BackendVault,
		SecretPath:         "cryoet",
		SecretTimeout:      10,
		SecretWaitAttempts: 5,
		SecretWaitInterval: 2,
		VaultAddr:          "http://vault:8200",
		VaultToken:         "root",
		VaultMount:         "secret",
		VaultAuthMethod:    "token",
		VaultJWTMount:      "jwt",
		DBHost:             "db",
		DBPort:             5432,
		DBSSLMode:          "disable",
		DBConnectTimeout:   10,
		DataDir:            "/app/data",
		IngestPolicy:       PolicyAppend,
		BatchSize:          1000,
		AutoMigrate:        true,
		ListenAddress:      ":8080",
		CacheTTL:           30,
		LogLevel:           "info",
		LogFormat:          "text",
		Environment:        "production",
		sources:            make(map[string]string),
	}
}

// Default returns the default configuration without reading any source.
func Default() *Config {
	c := newDefault()
	for _, b := range c.bindings() {
		c.sources[b.name] = SourceDefault
	}
	return c
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over file values.
func Load() (*Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	config := Default()

	configPath, _ := lookup("CRYOET_CONFIG_PATH")
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	config.configFilePath = filepath.Join(configPath, ConfigFileName)

	if data, err := os.ReadFile(config.configFilePath); err == nil {
		if err := config.applyFileConfig(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", config.configFilePath, err)
		}
	}

	if err := config.applyEnvConfig(lookup); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) applyFileConfig(data []byte) error {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}

	byName := make(map[string]binding)
	for _, b := range c.bindings() {
		byName[b.name] = b
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		b, ok := byName[name]
		if !ok {
			return fmt.Errorf("unknown attribute %q", name)
		}
		node := raw[name]
		if node.Kind != yaml.ScalarNode {
			return fmt.Errorf("%s: expected a scalar value", name)
		}
		if err := b.set(node.Value); err != nil {
			return err
		}
		c.sources[name] = SourceFile
	}
	return nil
}

func (c *Config) applyEnvConfig(lookup func(string) (string, bool)) error {
	for _, b := range c.bindings() {
		val, ok := lookup(b.env)
		if !ok || val == "" {
			continue
		}
		if err := b.set(val); err != nil {
			return fmt.Errorf("invalid %s: %w", b.env, err)
		}
		c.sources[b.name] = SourceEnvironment
	}
	return nil
}

// ConfigFilePath returns the path to the config file
func (c *Config) ConfigFilePath() string {
	return c.configFilePath
}

// Source returns the source of a configuration attribute
func (c *Config) Source(name string) string {
	if c.sources == nil {
		return SourceDefault
	}
	if s, ok := c.sources[name]; ok {
		return s
	}
	return SourceDefault
}

// SecretTimeoutDuration returns secret_timeout as a duration
func (c *Config) SecretTimeoutDuration() time.Duration {
	return time.Duration(c.SecretTimeout) * time.Second
}

// SecretWaitIntervalDuration returns secret_wait_interval as a duration
func (c *Config) SecretWaitIntervalDuration() time.Duration {
	return time.Duration(c.SecretWaitInterval) * time.Second
}

// DBConnectTimeoutDuration returns db_connect_timeout as a duration
func (c *Config) DBConnectTimeoutDuration() time.Duration {
	return time.Duration(c.DBConnectTimeout) * time.Second
}

// CacheTTLDuration returns cache_ttl as a duration
func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// LabelsPath returns the label table location, defaulting to
// labels.csv inside data_dir.
func (c *Config) LabelsPath() string {
	if c.LabelsFile != "" {
		return c.LabelsFile
	}
	return filepath.Join(c.DataDir, "labels.csv")
}

// ResolvedVaultToken returns the Vault token, reading vault_token_file when set.
func (c *Config) ResolvedVaultToken() (string, error) {
	if c.VaultTokenFile == "" {
		return c.VaultToken, nil
	}
	data, err := os.ReadFile(c.VaultTokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read vault token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !slices.Contains([]string{BackendVault, BackendConjur}, c.SecretBackend) {
		return fmt.Errorf("invalid secret_backend: %s", c.SecretBackend)
	}
	if strings.TrimSpace(c.SecretPath) == "" {
		return fmt.Errorf("secret_path must not be empty")
	}
	if c.SecretTimeout <= 0 {
		return fmt.Errorf("secret_timeout must be positive")
	}
	if c.SecretWaitAttempts < 1 {
		return fmt.Errorf("secret_wait_attempts must be at least 1")
	}

	switch c.SecretBackend {
	case BackendVault:
		if _, err := url.ParseRequestURI(c.VaultAddr); err != nil {
			return fmt.Errorf("invalid vault_addr: %s", c.VaultAddr)
		}
		switch c.VaultAuthMethod {
		case "token":
		case "jwt":
			if c.VaultJWTRole == "" || c.VaultJWTFile == "" {
				return fmt.Errorf("vault_auth_method jwt requires vault_jwt_role and vault_jwt_file")
			}
		default:
			return fmt.Errorf("invalid vault_auth_method: %s", c.VaultAuthMethod)
		}
	case BackendConjur:
		if c.ConjurURL == "" || c.ConjurAccount == "" || c.ConjurLogin == "" {
			return fmt.Errorf("conjur backend requires conjur_url, conjur_account and conjur_login")
		}
	}

	if c.DBPort <= 0 || c.DBPort > 65535 {
		return fmt.Errorf("invalid db_port: %d", c.DBPort)
	}
	if c.DBConnectTimeout <= 0 {
		return fmt.Errorf("db_connect_timeout must be positive")
	}
	if !slices.Contains([]string{PolicyAppend, PolicyReplace}, c.IngestPolicy) {
		return fmt.Errorf("invalid ingest_policy: %s", c.IngestPolicy)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative")
	}
	if c.AuditPersist && !c.AuditEnabled {
		return fmt.Errorf("audit_persist requires audit_enabled")
	}

	return nil
}

// Attributes returns all configuration attributes with their values and
// sources. Secret values are masked.
func (c *Config) Attributes() []Attribute {
	bindings := c.bindings()
	attrs := make([]Attribute, 0, len(bindings))
	for _, b := range bindings {
		value := b.value()
		if b.secret && value != "" {
			value = "******"
		}
		attrs = append(attrs, Attribute{Name: b.name, Value: value, Source: c.Source(b.name)})
	}
	return attrs
}

// FormatText returns a text representation of the configuration
func (c *Config) FormatText() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Config file: %s\n\n", c.configFilePath))
	sb.WriteString(fmt.Sprintf("%-25s %-35s %s\n", "NAME", "VALUE", "SOURCE"))
	sb.WriteString(fmt.Sprintf("%-25s %-35s %s\n", "----", "-----", "------"))

	for _, attr := range c.Attributes() {
		value := attr.Value
		if value == "" {
			value = "(not set)"
		}
		sb.WriteString(fmt.Sprintf("%-25s %-35s %s\n", attr.Name, value, attr.Source))
	}
	return sb.String()
}

// FormatJSON returns a JSON representation of the configuration
func (c *Config) FormatJSON() (string, error) {
	result := map[string]interface{}{
		"config_file": c.configFilePath,
		"attributes":  c.Attributes(),
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
