// Package config loads credledger settings from a YAML file, a .env file and
// CREDLEDGER_* environment variables, in increasing precedence.
package config

import (
	"time"

	"xdao.co/credledger/storage/registry"
)

// Config is the root configuration.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Contract  ContractConfig  `yaml:"contract"`
	Signer    SignerConfig    `yaml:"signer"`
	Policy    PolicyConfig    `yaml:"policy"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Journal   JournalConfig   `yaml:"journal"`
	Log       LogConfig       `yaml:"log"`
}

// NodeConfig is the ledger JSON-RPC endpoint.
type NodeConfig struct {
	URL          string        `yaml:"url"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
	ReadAttempts int           `yaml:"read_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// ContractConfig names the credential contract.
type ContractConfig struct {
	// Hash is the contract hash, with or without the "hash-" prefix.
	Hash string `yaml:"hash"`
	// DictionarySeed locates the credential dictionary: uref-<hex>-<octal>,
	// hash-<hex> or bare hex.
	DictionarySeed string `yaml:"dictionary_seed"`
}

// SignerConfig configures the external casper-client signer.
type SignerConfig struct {
	Bin       string `yaml:"bin"`
	ChainName string `yaml:"chain_name"`
	SecretKey string `yaml:"secret_key"`
	TTL       string `yaml:"ttl"`
}

// PolicyConfig mirrors lifecycle.Policy.
type PolicyConfig struct {
	VerifyTimeout  time.Duration `yaml:"verify_timeout"`
	VerifyInterval time.Duration `yaml:"verify_interval"`
	RevokeTimeout  time.Duration `yaml:"revoke_timeout"`
	RevokeInterval time.Duration `yaml:"revoke_interval"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
	VerifyPayment  uint64        `yaml:"verify_payment"`
	RevokePayment  uint64        `yaml:"revoke_payment"`
	// Mode is "permissive" or "strict".
	Mode string `yaml:"mode"`
}

// ArtifactsConfig places manifests in Dir and artifacts in the configured
// backends. With no backends, artifacts go to Dir/blocks.
type ArtifactsConfig struct {
	Dir    string          `yaml:"dir"`
	Stores registry.Config `yaml:",inline"`
}

// Enabled reports whether artifacts are recorded at all.
func (a ArtifactsConfig) Enabled() bool { return a.Dir != "" }

// JournalConfig selects the submission journal.
type JournalConfig struct {
	// Backend is "file", "redis" or "none".
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Node: NodeConfig{
			URL:          "http://127.0.0.1:7777/rpc",
			CallTimeout:  30 * time.Second,
			ReadAttempts: 3,
			RetryBackoff: 200 * time.Millisecond,
		},
		Signer: SignerConfig{
			Bin:       "casper-client",
			ChainName: "casper-test",
		},
		Policy: PolicyConfig{
			VerifyTimeout:  30 * time.Second,
			VerifyInterval: time.Second,
			RevokeTimeout:  30 * time.Second,
			RevokeInterval: time.Second,
			SettleDelay:    5 * time.Second,
			VerifyPayment:  3_000_000_000,
			RevokePayment:  4_000_000_000,
			Mode:           "permissive",
		},
		Artifacts: ArtifactsConfig{Dir: "artifacts"},
		Journal:   JournalConfig{Backend: "file", Path: "artifacts/journal.jsonl"},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}
