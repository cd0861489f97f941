package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ArgType is a session argument type as named by casper-client.
type ArgType string

const (
	ArgU256   ArgType = "u256"
	ArgU64    ArgType = "u64"
	ArgString ArgType = "string"
)

// Arg is one typed session argument.
type Arg struct {
	Name  string
	Type  ArgType
	Value string
}

// String renders the casper-client form name:type='value'.
func (a Arg) String() string { return fmt.Sprintf("%s:%s='%s'", a.Name, a.Type, a.Value) }

func (a Arg) validate() error {
	if a.Name == "" {
		return errors.New("argument name is empty")
	}
	if strings.ContainsAny(a.Value, "'\n") {
		return fmt.Errorf("argument %s: value may not contain quotes or newlines", a.Name)
	}
	switch a.Type {
	case ArgU256, ArgU64:
		if a.Value == "" || strings.Trim(a.Value, "0123456789") != "" {
			return fmt.Errorf("argument %s: %q is not an unsigned integer", a.Name, a.Value)
		}
		if a.Type == ArgU64 {
			if _, err := strconv.ParseUint(a.Value, 10, 64); err != nil {
				return fmt.Errorf("argument %s: %w", a.Name, err)
			}
		}
	case ArgString:
	default:
		return fmt.Errorf("argument %s: unsupported type %q", a.Name, a.Type)
	}
	return nil
}

// maxU256Digits is len("115792089237316195423570985008687907853269984665640564039457584007913129639935").
const maxU256Digits = 78

// IDArg types a credential id: decimal ids that fit in 256 bits are u256,
// everything else is a string.
func IDArg(name, id string) Arg {
	if id != "" && len(id) <= maxU256Digits && strings.Trim(id, "0123456789") == "" {
		if len(id) < maxU256Digits || id <= "115792089237316195423570985008687907853269984665640564039457584007913129639935" {
			return Arg{Name: name, Type: ArgU256, Value: id}
		}
	}
	return Arg{Name: name, Type: ArgString, Value: id}
}

func StringArg(name, v string) Arg { return Arg{Name: name, Type: ArgString, Value: v} }

// Action is an unsigned contract call.
type Action struct {
	EntryPoint string
	Args       []Arg
	// Payment is the gas budget in motes.
	Payment uint64
}

// Signer turns an Action into a SignedAction. Implementations live outside
// the process boundary; failures are surfaced as-is and never retried.
type Signer interface {
	Sign(ctx context.Context, a Action) (SignedAction, error)
}

// CasperClientOptions configures CasperClientSigner.
type CasperClientOptions struct {
	// Bin is the casper-client binary. If empty, "casper-client" is used.
	Bin           string
	ChainName     string
	SecretKeyPath string
	// SessionHash is the contract hash the actions call.
	SessionHash string
	// TTL is passed through when set, e.g. "30min".
	TTL string
	// Env optionally overrides the command environment.
	Env []string
}

// CasperClientSigner signs actions with `casper-client make-deploy`.
type CasperClientSigner struct {
	opts CasperClientOptions
}

func NewCasperClientSigner(opts CasperClientOptions) (*CasperClientSigner, error) {
	if opts.Bin == "" {
		opts.Bin = "casper-client"
	}
	switch {
	case opts.ChainName == "":
		return nil, errors.New("ledger: signer: chain name is required")
	case opts.SecretKeyPath == "":
		return nil, errors.New("ledger: signer: secret key path is required")
	case opts.SessionHash == "":
		return nil, errors.New("ledger: signer: session hash is required")
	}
	opts.SessionHash = strings.TrimPrefix(opts.SessionHash, "hash-")
	return &CasperClientSigner{opts: opts}, nil
}

// Args returns the command line for a.
func (s *CasperClientSigner) Args(a Action) ([]string, error) {
	if a.EntryPoint == "" {
		return nil, errors.New("ledger: signer: entry point is required")
	}
	if a.Payment == 0 {
		return nil, errors.New("ledger: signer: payment amount is required")
	}
	args := []string{
		"make-deploy",
		"--chain-name", s.opts.ChainName,
		"--secret-key", s.opts.SecretKeyPath,
		"--payment-amount", strconv.FormatUint(a.Payment, 10),
		"--session-hash", s.opts.SessionHash,
		"--session-entry-point", a.EntryPoint,
	}
	if s.opts.TTL != "" {
		args = append(args, "--ttl", s.opts.TTL)
	}
	for _, arg := range a.Args {
		if err := arg.validate(); err != nil {
			return nil, fmt.Errorf("ledger: signer: %w", err)
		}
		args = append(args, "--session-arg", arg.String())
	}
	return args, nil
}

func (s *CasperClientSigner) Sign(ctx context.Context, a Action) (SignedAction, error) {
	args, err := s.Args(a)
	if err != nil {
		return SignedAction{}, err
	}
	out, err := s.run(ctx, args...)
	if err != nil {
		return SignedAction{}, err
	}
	return ParseReceipt(out)
}

func (s *CasperClientSigner) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.opts.Bin, args...)
	if s.opts.Env != nil {
		cmd.Env = s.opts.Env
	}
	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		msg := strings.TrimSpace(string(ee.Stderr))
		if msg == "" {
			return nil, fmt.Errorf("casper-client: %v", err)
		}
		return nil, fmt.Errorf("casper-client: %s", msg)
	}
	return nil, fmt.Errorf("casper-client: %w", err)
}

// ParseReceipt extracts the deploy from signer output. Lines before the
// first line opening a JSON object (warnings, banners) are ignored.
func ParseReceipt(out []byte) (SignedAction, error) {
	start := -1
	for offset := 0; offset < len(out); {
		end := bytes.IndexByte(out[offset:], '\n')
		if end < 0 {
			end = len(out) - offset
		}
		if bytes.HasPrefix(bytes.TrimSpace(out[offset:offset+end]), []byte("{")) {
			start = offset
			break
		}
		offset += end + 1
	}
	if start < 0 {
		return SignedAction{}, errors.New("ledger: signer output contains no JSON document")
	}
	body := bytes.TrimSpace(out[start:])

	var deploy struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(body, &deploy); err != nil {
		return SignedAction{}, fmt.Errorf("ledger: signer output: %w", err)
	}
	if deploy.Hash == "" {
		return SignedAction{}, errors.New("ledger: signer output has no deploy hash")
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return SignedAction{}, fmt.Errorf("ledger: signer output: %w", err)
	}
	return SignedAction{Hash: deploy.Hash, Deploy: compact.Bytes()}, nil
}
