package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Embedding providers.
const (
	EmbedProviderLocal  = "local"
	EmbedProviderOpenAI = "openai"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Store     StoreConfig       `yaml:"store"`
	Index     IndexConfig       `yaml:"index"`
	Archive   ArchiveConfig     `yaml:"archive"`
	Inbox     InboxConfig       `yaml:"inbox"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	Ingest    IngestConfig      `yaml:"ingest"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Archive.Validate(); err != nil {
		return err
	}
	if err := c.Inbox.Validate(); err != nil {
		return err
	}
	if err := c.Embedding.Validate(); err != nil {
		return err
	}
	if err := c.Ingest.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig holds the SQLite database for envelopes and versions.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IndexConfig holds the vector index configuration. An empty Path keeps
// the index in memory; it then has to be rebuilt by re-publishing after a
// restart.
type IndexConfig struct {
	Path        string `yaml:"path"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
	MaxRetries  int    `yaml:"max_retries"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BatchSize, validation.Min(0)),
		validation.Field(&c.Concurrency, validation.Min(0)),
		validation.Field(&c.MaxRetries, validation.Min(0)),
	)
}

// ArchiveConfig holds the root directory for archived source files.
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the archive configuration.
func (c *ArchiveConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// InboxConfig holds the drop-folder watcher configuration. Files placed
// under <path>/<owner>/ are ingested and removed.
type InboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	if c.Enabled && c.Path == "" {
		return fmt.Errorf("inbox: enabled but path is empty")
	}
	return nil
}

// EmbeddingConfig selects and configures the embedding provider.
//
//   - "local" (default): deterministic hash embeddings, no network calls.
//   - "openai": the OpenAI embeddings API; APIKey must be non-empty.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
}

// Validate validates the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = EmbedProviderLocal
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(EmbedProviderLocal, EmbedProviderOpenAI)),
		validation.Field(&c.Dimension, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.Provider == EmbedProviderOpenAI && c.APIKey == "" {
		return fmt.Errorf("embedding: provider is %q but api_key is empty", EmbedProviderOpenAI)
	}
	return nil
}

// IngestConfig holds pipeline defaults applied when a request does not
// override them.
type IngestConfig struct {
	ChunkSize int      `yaml:"chunk_size"`
	Topics    []string `yaml:"topics"`
}

// Validate validates the ingest configuration.
func (c *IngestConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ChunkSize, validation.Min(0)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication; every request runs as the
//     anonymous local owner.
//   - "token": Bearer token authentication; Tokens maps each accepted
//     token to the owner it acts as.
type AuthConfig struct {
	Mode   string            `yaml:"mode"`
	Tokens map[string]string `yaml:"tokens"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken {
		if len(c.Tokens) == 0 {
			return fmt.Errorf("auth: mode is %q but no tokens are configured", AuthModeToken)
		}
		for token, owner := range c.Tokens {
			if token == "" || owner == "" {
				return fmt.Errorf("auth: tokens must map non-empty tokens to non-empty owners")
			}
		}
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Path: "./mimir.db",
		},
		Index: IndexConfig{
			Path: "./vectors.db",
		},
		Archive: ArchiveConfig{
			Path: "./archive",
		},
		Inbox: InboxConfig{
			Path: "./inbox",
		},
		Embedding: EmbeddingConfig{
			Provider: EmbedProviderLocal,
		},
		Ingest: IngestConfig{
			ChunkSize: 5,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
