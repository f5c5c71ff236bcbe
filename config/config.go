// Package config loads and validates the verifier's configuration
// surface (spec §6): the recognized JSON options plus the paths they
// resolve relative to configDir.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const numShards = 16

// Config holds every recognized configuration option for a verifier
// node.
type Config struct {
	// ConfigDir is the directory genesisBlock/genesisData paths are
	// resolved relative to. Not itself a JSON field; set by Load.
	ConfigDir string `json:"-"`

	// Beneficiary is the hex-encoded 20-byte miner address credited in
	// proposed block headers.
	Beneficiary string `json:"beneficiary"`

	// GenesisBlock is the path (relative to ConfigDir) to the
	// RLP-encoded genesis block.
	GenesisBlock string `json:"genesisBlock"`

	// GenesisData is the path (relative to ConfigDir) to the JSON
	// account dump seeding genesis state.
	GenesisData string `json:"genesisData"`

	// Storage holds the per-shard host list, indexed 0..15.
	Storage [numShards]string `json:"storage"`

	// RPCStorageTimeout is rpc.storageTimeout (milliseconds) as a
	// Duration, set by Load. Startup dials no shard connection, so
	// nothing waits on or enforces this timeout.
	RPCStorageTimeout time.Duration `json:"-"`
	RPCStorageTimeoutMS int64 `json:"rpc.storageTimeout"`

	// PowMin, PowMax bound the PoS timer (milliseconds).
	PowMin int `json:"powMin"`
	PowMax int `json:"powMax"`

	// MaxTxPerBlock caps transactions gathered per block; 0 means
	// unbounded.
	MaxTxPerBlock int `json:"maxTxPerBlock"`

	// PruneDepth is the MPT cache depth retained across prunes.
	PruneDepth int `json:"pruneDepth"`

	// ShareBag unifies all per-tx witnesses into one bag per height.
	ShareBag bool `json:"shareBag"`

	// GenerateFromAccounts synthesizes absent sender accounts instead
	// of failing the transaction.
	GenerateFromAccounts bool `json:"generateFromAccounts"`

	// DisableNonceCheck skips sender-nonce equality enforcement.
	DisableNonceCheck bool `json:"disableNonceCheck"`
}

// DefaultConfig returns a Config with the spec's documented PoS timer
// defaults and otherwise-empty fields.
func DefaultConfig() Config {
	return Config{
		PowMin:            5000,
		PowMax:            12000,
		RPCStorageTimeoutMS: 5000,
		PruneDepth:        128,
	}
}

// Load reads a JSON configuration file and returns a validated Config
// with ConfigDir set to the file's containing directory.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.ConfigDir = filepath.Dir(path)
	cfg.RPCStorageTimeout = time.Duration(cfg.RPCStorageTimeoutMS) * time.Millisecond

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.PowMin <= 0 || c.PowMax <= 0 {
		return errors.New("config: powMin/powMax must be positive")
	}
	if c.PowMin > c.PowMax {
		return fmt.Errorf("config: powMin (%d) exceeds powMax (%d)", c.PowMin, c.PowMax)
	}
	if c.MaxTxPerBlock < 0 {
		return fmt.Errorf("config: invalid maxTxPerBlock: %d", c.MaxTxPerBlock)
	}
	if c.PruneDepth < 0 {
		return fmt.Errorf("config: invalid pruneDepth: %d", c.PruneDepth)
	}
	if len(c.Beneficiary) != 0 && len(c.Beneficiary) != 40 && len(c.Beneficiary) != 42 {
		return fmt.Errorf("config: beneficiary must be a 20-byte hex address, got %d chars", len(c.Beneficiary))
	}
	return nil
}

// ResolvePath resolves path relative to ConfigDir, unless it is already
// absolute.
func (c *Config) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.ConfigDir, path)
}

// ShardHost returns the configured host for the given shard index
// (0..15), or "" if unset.
func (c *Config) ShardHost(shard int) string {
	if shard < 0 || shard >= numShards {
		return ""
	}
	return c.Storage[shard]
}
