package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Chain flavors.
const (
	FlavorEthereum = "ethereum"
	FlavorOptimism = "optimism"
)

// Config is the top-level txpool node configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Chain   ChainConfig   `yaml:"chain"`
	Rollup  RollupConfig  `yaml:"rollup"`
	L1      L1Config      `yaml:"l1"`
	Pool    PoolConfig    `yaml:"pool"`
	Signer  SignerConfig  `yaml:"signer"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds the JSON-RPC listener settings.
type ServerConfig struct {
	ListenAddr  string   `yaml:"listen_addr"`
	WSAddr      string   `yaml:"ws_addr"`
	CORSOrigins []string `yaml:"cors_origins"`
	// RateLimit is the sustained requests per second accepted per server;
	// zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// ChainConfig identifies the served chain.
type ChainConfig struct {
	ChainID uint64 `yaml:"chain_id"`
	Flavor  string `yaml:"flavor"`
}

// RollupConfig holds rollup fork activation timestamps. Unset forks are
// never active.
type RollupConfig struct {
	RegolithTime *uint64 `yaml:"regolith_time"`
	EcotoneTime  *uint64 `yaml:"ecotone_time"`
	FjordTime    *uint64 `yaml:"fjord_time"`
}

// L1Config holds the L1 (Ethereum) connection and fee parameters.
type L1Config struct {
	RPCURL       string        `yaml:"rpc_url"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// Static L1 block context, used when RPCURL is empty and as the scalar
	// source for polled blocks.
	BaseFee           uint64 `yaml:"base_fee"`
	BlobBaseFee       uint64 `yaml:"blob_base_fee"`
	FeeOverhead       uint64 `yaml:"fee_overhead"`
	FeeScalar         uint64 `yaml:"fee_scalar"`
	BaseFeeScalar     uint64 `yaml:"base_fee_scalar"`
	BlobBaseFeeScalar uint64 `yaml:"blob_base_fee_scalar"`
}

// PoolConfig holds mempool limits.
type PoolConfig struct {
	MaxSize         int           `yaml:"max_size"`
	MinFeeCap       uint64        `yaml:"min_fee_cap"`
	PriceBump       uint64        `yaml:"price_bump"`
	NonceRPCURL     string        `yaml:"nonce_rpc_url"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// SignerConfig lists hex-encoded private keys managed by the node.
type SignerConfig struct {
	Keys []string `yaml:"keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads and parses a YAML config file. A .env file next to the working
// directory is loaded first so its variables can be referenced as ${VAR}.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML onto the defaults, expanding environment variables.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	c.Chain.Flavor = strings.ToLower(c.Chain.Flavor)
	switch c.Chain.Flavor {
	case FlavorEthereum, FlavorOptimism:
	default:
		return fmt.Errorf("unknown chain flavor %q", c.Chain.Flavor)
	}
	if c.Chain.ChainID == 0 {
		return errors.New("chain.chain_id must be set")
	}
	if c.Pool.MaxSize <= 0 {
		return fmt.Errorf("pool.max_size must be positive, got %d", c.Pool.MaxSize)
	}
	switch c.Logging.Format {
	case "terminal", "json", "tint":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}
	if c.L1.RPCURL != "" && c.L1.PollInterval <= 0 {
		return errors.New("l1.poll_interval must be positive when l1.rpc_url is set")
	}
	return nil
}

// IsOptimism reports whether the chain uses the rollup response shape.
func (c *Config) IsOptimism() bool { return c.Chain.Flavor == FlavorOptimism }

// ChainIDBig returns the chain id as a big integer.
func (c *Config) ChainIDBig() *big.Int { return new(big.Int).SetUint64(c.Chain.ChainID) }

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:  "0.0.0.0:8545",
			WSAddr:      "0.0.0.0:8546",
			CORSOrigins: []string{"*"},
			RateLimit:   200,
			RateBurst:   400,
		},
		Chain: ChainConfig{
			ChainID: 10,
			Flavor:  FlavorOptimism,
		},
		L1: L1Config{
			PollInterval:      12 * time.Second,
			BaseFee:           1_000_000_000,
			BlobBaseFee:       1,
			FeeOverhead:       188,
			FeeScalar:         684_000,
			BaseFeeScalar:     1368,
			BlobBaseFeeScalar: 810_949,
		},
		Pool: PoolConfig{
			MaxSize:         50_000,
			PriceBump:       10,
			RefreshInterval: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "terminal",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "0.0.0.0:6060",
		},
	}
}
