package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"xdao.co/credledger/compliance"
	"xdao.co/credledger/keyderive"
)

// Validate checks the settings every command needs. Signer settings are
// checked by NeedSigner, since read-only commands run without a key.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.Node.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("node.url %q must be an http(s) URL", c.Node.URL))
	}
	if c.Node.ReadAttempts < 1 {
		errs = append(errs, fmt.Errorf("node.read_attempts must be at least 1"))
	}
	if c.Contract.DictionarySeed == "" {
		errs = append(errs, errors.New("contract.dictionary_seed is required"))
	} else if _, err := keyderive.ParseSeed(c.Contract.DictionarySeed); err != nil {
		errs = append(errs, fmt.Errorf("contract.dictionary_seed: %w", err))
	}
	if _, err := compliance.ParseMode(c.Policy.Mode); err != nil {
		errs = append(errs, fmt.Errorf("policy.mode: %w", err))
	}
	for name, d := range map[string]int64{
		"verify_interval": int64(c.Policy.VerifyInterval),
		"revoke_interval": int64(c.Policy.RevokeInterval),
		"verify_timeout":  int64(c.Policy.VerifyTimeout),
		"revoke_timeout":  int64(c.Policy.RevokeTimeout),
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("policy.%s must be positive", name))
		}
	}
	if len(c.Artifacts.Stores.Backends) > 0 {
		if err := c.Artifacts.Stores.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("artifacts: %w", err))
		}
	}
	switch c.Journal.Backend {
	case "", "none":
	case "file":
		if c.Journal.Path == "" {
			errs = append(errs, errors.New("journal.path is required for the file journal"))
		}
	case "redis":
		if c.Journal.Redis.Addr == "" {
			errs = append(errs, errors.New("journal.redis.addr is required for the redis journal"))
		}
	default:
		errs = append(errs, fmt.Errorf("journal.backend %q must be file, redis or none", c.Journal.Backend))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// NeedSigner checks the settings required to sign actions.
func (c *Config) NeedSigner() error {
	var errs []error
	if c.Contract.Hash == "" {
		errs = append(errs, errors.New("contract.hash is required to submit actions"))
	}
	if c.Signer.ChainName == "" {
		errs = append(errs, errors.New("signer.chain_name is required"))
	}
	if c.Signer.SecretKey == "" {
		errs = append(errs, errors.New("signer.secret_key is required"))
	}
	return errors.Join(errs...)
}
