// Package ledger talks to a Casper-style node over JSON-RPC: it resolves the
// current state root, reads dictionary entries, submits signed deploys and
// polls for their execution outcome.
//
// Reads are retried a bounded number of times on transient failures.
// Submissions are never retried: a resubmitted deploy is a second action.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"xdao.co/credledger/clvalue"
	"xdao.co/credledger/keyderive"
	"xdao.co/credledger/logging"
)

const (
	DefaultCallTimeout  = 30 * time.Second
	DefaultReadAttempts = 3
	DefaultRetryBackoff = 200 * time.Millisecond
)

type Options struct {
	// Endpoint is the node's RPC URL, e.g. http://node:7777/rpc.
	Endpoint   string
	HTTPClient *http.Client
	// CallTimeout bounds every individual RPC round trip.
	CallTimeout time.Duration
	// ReadAttempts bounds attempts for idempotent calls. 1 disables retry.
	ReadAttempts int
	// RetryBackoff is the first backoff; it doubles per attempt.
	RetryBackoff time.Duration
	Clock        Clock
	Logger       logging.Logger
}

type Client struct {
	endpoint     string
	http         *http.Client
	callTimeout  time.Duration
	readAttempts int
	backoff      time.Duration
	clock        Clock
	log          logging.Logger
}

func NewClient(opts Options) (*Client, error) {
	ep := strings.TrimSpace(opts.Endpoint)
	if ep == "" {
		return nil, errors.New("ledger: endpoint is required")
	}
	if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
		return nil, fmt.Errorf("ledger: endpoint %q must be an http(s) URL", ep)
	}
	c := &Client{
		endpoint:     ep,
		http:         opts.HTTPClient,
		callTimeout:  opts.CallTimeout,
		readAttempts: opts.ReadAttempts,
		backoff:      opts.RetryBackoff,
		clock:        opts.Clock,
		log:          opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.callTimeout <= 0 {
		c.callTimeout = DefaultCallTimeout
	}
	if c.readAttempts <= 0 {
		c.readAttempts = DefaultReadAttempts
	}
	if c.backoff <= 0 {
		c.backoff = DefaultRetryBackoff
	}
	if c.clock == nil {
		c.clock = SystemClock{}
	}
	if c.log == nil {
		c.log = logging.Nop()
	}
	return c, nil
}

func (c *Client) Clock() Clock { return c.clock }

// withRetry runs op up to readAttempts times, backing off exponentially
// between transient failures.
func withRetry[T any](ctx context.Context, c *Client, method string, op func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < c.readAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoff * time.Duration(1<<uint(attempt-1))
			c.log.WithFields(map[string]interface{}{"method": method, "attempt": attempt + 1, "backoff": backoff.String()}).
				Warnf("retrying after transient failure: %v", lastErr)
			if err := c.clock.Sleep(ctx, backoff); err != nil {
				return zero, err
			}
		}
		out, err := op()
		if err == nil {
			return out, nil
		}
		if !IsKind(err, KindTransient) || ctx.Err() != nil {
			return zero, err
		}
		lastErr = err
	}
	return zero, fmt.Errorf("ledger: %s failed after %d attempts: %w", method, c.readAttempts, lastErr)
}

// CurrentRoot resolves the latest state root hash.
func (c *Client) CurrentRoot(ctx context.Context) (RootHash, error) {
	const method = "chain_get_state_root_hash"
	return withRetry(ctx, c, method, func() (RootHash, error) {
		raw, err := c.call(ctx, method, nil)
		if err != nil {
			return "", err
		}
		var res struct {
			StateRootHash string `json:"state_root_hash"`
		}
		if err := json.Unmarshal(raw, &res); err != nil {
			return "", protocol(method, err, "undecodable result")
		}
		if res.StateRootHash == "" {
			return "", protocol(method, nil, "missing state_root_hash")
		}
		return RootHash(res.StateRootHash), nil
	})
}

type dictionaryResult struct {
	DictionaryKey string `json:"dictionary_key"`
	StoredValue   *struct {
		CLValue *clvalue.Value `json:"CLValue"`
	} `json:"stored_value"`
}

func (c *Client) readDictionary(ctx context.Context, root RootHash, ident any) (*StoredValue, error) {
	const method = "state_get_dictionary_item"
	params := map[string]any{
		"state_root_hash":       string(root),
		"dictionary_identifier": ident,
	}
	return withRetry(ctx, c, method, func() (*StoredValue, error) {
		raw, err := c.call(ctx, method, params)
		if err != nil {
			return nil, err
		}
		var res dictionaryResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, protocol(method, err, "undecodable result")
		}
		if res.StoredValue == nil || res.StoredValue.CLValue == nil {
			return nil, protocol(method, nil, "stored_value has no CLValue")
		}
		return &StoredValue{DictionaryKey: res.DictionaryKey, Value: res.StoredValue.CLValue, Raw: raw}, nil
	})
}

// Read fetches the dictionary entry at a derived address. A missing entry is
// reported as ErrNotFound.
func (c *Client) Read(ctx context.Context, root RootHash, addr keyderive.Address) (*StoredValue, error) {
	return c.readDictionary(ctx, root, map[string]string{"Dictionary": addr.String()})
}

// ReadNamed lets the node derive the address from a contract's named
// dictionary. The returned DictionaryKey is the node's own derivation.
func (c *Client) ReadNamed(ctx context.Context, root RootHash, contract, dictionary, key string) (*StoredValue, error) {
	if !strings.HasPrefix(contract, "hash-") {
		contract = "hash-" + contract
	}
	return c.readDictionary(ctx, root, map[string]any{
		"ContractNamedKey": map[string]string{
			"key":                 contract,
			"dictionary_name":     dictionary,
			"dictionary_item_key": key,
		},
	})
}

// Submit hands a signed deploy to the node and returns without waiting for
// execution. It is never retried.
func (c *Client) Submit(ctx context.Context, action SignedAction) (PendingHandle, error) {
	const method = "account_put_deploy"
	if len(action.Deploy) == 0 {
		return PendingHandle{}, errors.New("ledger: submit: empty deploy")
	}
	raw, err := c.call(ctx, method, map[string]json.RawMessage{"deploy": action.Deploy})
	if err != nil {
		return PendingHandle{}, err
	}
	var res struct {
		DeployHash string `json:"deploy_hash"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return PendingHandle{}, protocol(method, err, "undecodable result")
	}
	if res.DeployHash == "" {
		return PendingHandle{}, protocol(method, nil, "missing deploy_hash")
	}
	if action.Hash != "" && !strings.EqualFold(action.Hash, res.DeployHash) {
		return PendingHandle{}, protocol(method, nil, "node accepted %s, signed %s", res.DeployHash, action.Hash)
	}
	c.log.WithField("deploy", res.DeployHash).Info("deploy submitted")
	return PendingHandle{Hash: res.DeployHash, SubmittedAt: c.clock.Now()}, nil
}
