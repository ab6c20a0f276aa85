// Package config provides configuration of the ledger node.
//
// Configuration is read from YAML file and then overridden by environment
// variables prefixed with NTT_, e.g. NTT_STORAGE_TYPE or NTT_LOGGER_LEVEL.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/nspcc-dev/neo-go/pkg/core/storage/dbconfig"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/ntt-ledger/contracts/ntt"
	"github.com/nspcc-dev/ntt-ledger/driver"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is a prefix of all environment variables.
const EnvPrefix = "NTT_"

// Config is the ledger node configuration.
type Config struct {
	Ledger    Ledger    `yaml:"ledger" envPrefix:"LEDGER_"`
	Storage   Storage   `yaml:"storage" envPrefix:"STORAGE_"`
	Driver    Driver    `yaml:"driver" envPrefix:"DRIVER_"`
	RPC       RPC       `yaml:"rpc" envPrefix:"RPC_"`
	Logger    Logger    `yaml:"logger" envPrefix:"LOGGER_"`
	RateLimit RateLimit `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
}

// Ledger configures the contract.
type Ledger struct {
	// Address of the ledger, optional.
	Hash               string `yaml:"hash" env:"HASH"`
	MinAttachedDeposit uint64 `yaml:"min_attached_deposit" env:"MIN_ATTACHED_DEPOSIT"`
	CallBudget         uint64 `yaml:"call_budget" env:"CALL_BUDGET"`
	ResolveBudget      uint64 `yaml:"resolve_budget" env:"RESOLVE_BUDGET"`
}

// ScriptHash decodes the ledger address. Empty address gives zero hash.
func (l Ledger) ScriptHash() (util.Uint160, error) {
	if l.Hash == "" {
		return util.Uint160{}, nil
	}
	h, err := address.StringToUint160(l.Hash)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("invalid ledger address %q: %w", l.Hash, err)
	}
	return h, nil
}

// Params returns contract parameters.
func (l Ledger) Params() ntt.Params {
	return ntt.Params{
		MinAttachedDeposit: l.MinAttachedDeposit,
		CallBudget:         l.CallBudget,
		ResolveBudget:      l.ResolveBudget,
	}
}

// Storage configures the ledger database.
type Storage struct {
	// One of inmemory, leveldb and boltdb.
	Type string `yaml:"type" env:"TYPE"`
	// Database directory (leveldb) or file (boltdb).
	Path     string `yaml:"path" env:"PATH"`
	ReadOnly bool   `yaml:"read_only" env:"READ_ONLY"`
}

// DBConfiguration converts Storage into the form accepted by storage.NewStore.
func (s Storage) DBConfiguration() dbconfig.DBConfiguration {
	c := dbconfig.DBConfiguration{Type: s.Type}
	switch s.Type {
	case dbconfig.LevelDB:
		c.LevelDBOptions = dbconfig.LevelDBOptions{DataDirectoryPath: s.Path, ReadOnly: s.ReadOnly}
	case dbconfig.BoltDB:
		c.BoltDBOptions = dbconfig.BoltDBOptions{FilePath: s.Path, ReadOnly: s.ReadOnly}
	}
	return c
}

// Driver configures awaiting of the settlement outcomes.
type Driver struct {
	InitialInterval time.Duration `yaml:"initial_interval" env:"INITIAL_INTERVAL"`
	MaxInterval     time.Duration `yaml:"max_interval" env:"MAX_INTERVAL"`
	MaxElapsed      time.Duration `yaml:"max_elapsed" env:"MAX_ELAPSED"`
}

// RPC configures connection to the Neo node hosting remote applications.
type RPC struct {
	Endpoint       string        `yaml:"endpoint" env:"ENDPOINT"`
	DialTimeout    time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// NEP-6 wallet with the account signing the calls.
	Wallet string `yaml:"wallet" env:"WALLET"`
	// Account address, default wallet account is used if empty.
	Account  string `yaml:"account" env:"ACCOUNT"`
	Password string `yaml:"password" env:"PASSWORD"`
}

// Logger configures logging.
type Logger struct {
	Level    string `yaml:"level" env:"LEVEL"`
	Encoding string `yaml:"encoding" env:"ENCODING"`
}

// Build constructs logger.
func (l Logger) Build() (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}

	c := zap.NewProductionConfig()
	c.Level = zap.NewAtomicLevelAt(lvl)
	c.Encoding = l.Encoding
	c.Sampling = nil
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return c.Build()
}

// RateLimit configures per-caller limits of the mutating calls. Zero RPS
// disables limiting.
type RateLimit struct {
	RPS     float64       `yaml:"rps" env:"RPS"`
	Burst   int           `yaml:"burst" env:"BURST"`
	IdleTTL time.Duration `yaml:"idle_ttl" env:"IDLE_TTL"`
}

// Default returns default configuration: in-memory ledger with default
// contract parameters and info logging to console.
func Default() Config {
	p := ntt.DefaultParams()
	return Config{
		Ledger: Ledger{
			MinAttachedDeposit: p.MinAttachedDeposit,
			CallBudget:         p.CallBudget,
			ResolveBudget:      p.ResolveBudget,
		},
		Storage: Storage{Type: dbconfig.InMemoryDB},
		Driver: Driver{
			InitialInterval: driver.DefaultInitialInterval,
			MaxInterval:     driver.DefaultMaxInterval,
			MaxElapsed:      driver.DefaultMaxElapsed,
		},
		RPC: RPC{
			DialTimeout:    5 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Logger: Logger{Level: "info", Encoding: "console"},
	}
}

// Load reads configuration file at the path over Default and applies
// environment overrides. Empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := c.Ledger.ScriptHash(); err != nil {
		return err
	}

	switch c.Storage.Type {
	case dbconfig.InMemoryDB:
	case dbconfig.LevelDB, dbconfig.BoltDB:
		if c.Storage.Path == "" {
			return fmt.Errorf("missing %s path", c.Storage.Type)
		}
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}

	if _, err := zapcore.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	switch c.Logger.Encoding {
	case "console", "json":
	default:
		return fmt.Errorf("unsupported logger encoding %q", c.Logger.Encoding)
	}

	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("negative rate limit")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		return errors.New("zero rate limit burst")
	}
	return nil
}
