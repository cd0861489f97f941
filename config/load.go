package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CREDLEDGER_"

// LoadEnvFile sets KEY=VALUE lines from path into the process environment.
// Blank lines and # comments are skipped, surrounding quotes are removed and
// an optional "export " prefix is accepted. Variables already set are kept
// unless override is true. A missing file is not an error.
func LoadEnvFile(path string, override bool) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("config: %s:%d: expected KEY=VALUE", path, n)
		}
		val = unquote(strings.TrimSpace(val))
		if _, set := os.LookupEnv(key); set && !override {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return err
		}
	}
	return sc.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// Load reads path over Default and applies environment overrides. An empty
// path skips the file. The result is not validated; call Validate.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config unmarshal %s: %w", path, err)
		}
	}
	if err := applyEnv(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyEnv overrides settings from CREDLEDGER_* variables. CASPER_NODE_URL is
// honoured when CREDLEDGER_NODE_URL is unset.
func applyEnv(c *Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}
	num := func(name string, dst *int) error {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	if v := os.Getenv("CASPER_NODE_URL"); v != "" {
		c.Node.URL = v
	}
	str("NODE_URL", &c.Node.URL)
	str("CONTRACT_HASH", &c.Contract.Hash)
	str("DICTIONARY_SEED", &c.Contract.DictionarySeed)
	str("CASPER_CLIENT", &c.Signer.Bin)
	str("CHAIN_NAME", &c.Signer.ChainName)
	str("SECRET_KEY", &c.Signer.SecretKey)
	str("MODE", &c.Policy.Mode)
	str("ARTIFACT_DIR", &c.Artifacts.Dir)
	str("JOURNAL", &c.Journal.Backend)
	str("REDIS_ADDR", &c.Journal.Redis.Addr)
	str("REDIS_PASSWORD", &c.Journal.Redis.Password)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	for name, dst := range map[string]*time.Duration{
		"CALL_TIMEOUT":   &c.Node.CallTimeout,
		"VERIFY_TIMEOUT": &c.Policy.VerifyTimeout,
		"REVOKE_TIMEOUT": &c.Policy.RevokeTimeout,
		"POLL_INTERVAL":  &c.Policy.VerifyInterval,
		"SETTLE_DELAY":   &c.Policy.SettleDelay,
		"RETRY_BACKOFF":  &c.Node.RetryBackoff,
	} {
		if err := dur(name, dst); err != nil {
			return err
		}
	}
	if os.Getenv(EnvPrefix+"POLL_INTERVAL") != "" {
		c.Policy.RevokeInterval = c.Policy.VerifyInterval
	}
	if err := num("READ_ATTEMPTS", &c.Node.ReadAttempts); err != nil {
		return err
	}
	return num("REDIS_DB", &c.Journal.Redis.DB)
}
