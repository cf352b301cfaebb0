// Package config loads ledgerdb configuration.
//
// A configuration file is YAML decoded strictly (unknown keys are errors),
// completed with defaults, and then validated against an embedded CUE
// schema. Command-line overrides are applied by the caller, which should
// call Validate again afterwards.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Default values.
const (
	DefaultDriver          = "sqlite3"
	DefaultDSN             = "ledger.db"
	DefaultMaxOpenConns    = 10
	DefaultConnectTimeout  = "10s"
	DefaultActiveDelegates = 51
	DefaultListLimit       = 100
	DefaultMaxListLimit    = 1000
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultWalletCacheSize = 1024
)

// Config is the full configuration document.
type Config struct {
	Database Database `yaml:"database" json:"database"`
	Rounds   Rounds   `yaml:"rounds" json:"rounds"`
	Listing  Listing  `yaml:"listing" json:"listing"`
	Log      Log      `yaml:"log" json:"log"`
	Wallets  Wallets  `yaml:"wallets" json:"wallets"`
	Metrics  Metrics  `yaml:"metrics" json:"metrics"`
}

// Database selects the backing store.
type Database struct {
	// Driver is "pgx", "postgres" or "sqlite3".
	Driver string `yaml:"driver" json:"driver"`

	// DSN is the connection string, or a file path for SQLite.
	DSN string `yaml:"dsn" json:"dsn"`

	// ReadDSN optionally serves paginated listings.
	ReadDSN string `yaml:"read_dsn" json:"read_dsn,omitempty"`

	MaxOpenConns   int    `yaml:"max_open_conns" json:"max_open_conns"`
	ConnectTimeout string `yaml:"connect_timeout" json:"connect_timeout"`
}

// Timeout returns ConnectTimeout as a duration.
// The value has already been checked by Validate.
func (d Database) Timeout() time.Duration {
	t, err := time.ParseDuration(d.ConnectTimeout)
	if err != nil {
		return 0
	}
	return t
}

// Rounds sizes the delegate rounds.
type Rounds struct {
	ActiveDelegates int `yaml:"active_delegates" json:"active_delegates"`
}

// Listing tunes paginated searches.
type Listing struct {
	EstimateTotalCount bool `yaml:"estimate_total_count" json:"estimate_total_count"`
	DefaultLimit       int  `yaml:"default_limit" json:"default_limit"`
	MaxLimit           int  `yaml:"max_limit" json:"max_limit"`
}

// Limit clamps a requested page size: zero or less selects DefaultLimit,
// anything above MaxLimit is cut to MaxLimit.
func (l Listing) Limit(requested int) int {
	if requested <= 0 {
		return l.DefaultLimit
	}
	return min(requested, l.MaxLimit)
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Wallets configures address resolution for transaction searches.
type Wallets struct {
	// IndexFile is a YAML wallet index. Empty disables address resolution.
	IndexFile string `yaml:"index_file" json:"index_file,omitempty"`
	CacheSize int    `yaml:"cache_size" json:"cache_size"`
}

// Metrics configures metric export.
type Metrics struct {
	// Textfile is written in the Prometheus text format on exit.
	Textfile string `yaml:"textfile" json:"textfile,omitempty"`
}

// ValidationError reports a configuration that does not satisfy the schema.
type ValidationError struct {
	Details string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + e.Details
}

// IsValidation reports whether err is a schema violation.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Default returns a configuration holding every default.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// Load reads the configuration file at path. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads one YAML document from r, applies defaults and validates.
func Decode(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	setDefault(&c.Database.Driver, DefaultDriver)
	setDefault(&c.Database.DSN, DefaultDSN)
	setDefault(&c.Database.MaxOpenConns, DefaultMaxOpenConns)
	setDefault(&c.Database.ConnectTimeout, DefaultConnectTimeout)
	setDefault(&c.Rounds.ActiveDelegates, DefaultActiveDelegates)
	setDefault(&c.Listing.DefaultLimit, DefaultListLimit)
	setDefault(&c.Listing.MaxLimit, max(DefaultMaxListLimit, c.Listing.DefaultLimit))
	setDefault(&c.Log.Level, DefaultLogLevel)
	setDefault(&c.Log.Format, DefaultLogFormat)
	setDefault(&c.Wallets.CacheSize, DefaultWalletCacheSize)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Validate checks c against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	doc := ctx.Encode(c)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Details: strings.TrimSpace(cueerrors.Details(err, nil))}
	}
	return nil
}
