// Package ipfs stores artifacts as raw blocks in a local Kubo repository by
// running the ipfs CLI. No daemon is required.
package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/credledger/cidutil"
	"xdao.co/credledger/storage"
	"xdao.co/credledger/storage/registry"
)

// Store runs "ipfs block" commands. Blocks are written with the raw codec and
// a sha2-256 multihash, so their CIDs match cidutil.Sum.
type Store struct {
	bin string
	env []string
	pin bool
}

var _ storage.Store = (*Store)(nil)

type Options struct {
	// Bin is the ipfs binary; "ipfs" when empty.
	Bin string
	// Repo sets IPFS_PATH for every command when non-empty.
	Repo string
	// Pin keeps written blocks from garbage collection.
	Pin bool
}

func New(opts Options) *Store {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	var env []string
	if opts.Repo != "" {
		env = append(os.Environ(), "IPFS_PATH="+opts.Repo)
	}
	return &Store{bin: bin, env: env, pin: opts.Pin}
}

func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	want, err := cidutil.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	args := []string{"block", "put", "--quiet", "--cid-codec=raw", "--mhtype=sha2-256", "--mhlen=32"}
	if s.pin {
		args = append(args, "--pin=true")
	}
	out, err := s.run(ctx, data, args...)
	if err != nil {
		return cid.Undef, err
	}
	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if !got.Equals(want) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return want, nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	out, err := s.run(ctx, nil, "block", "get", id.String())
	if err != nil {
		if notFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := storage.Verify(id, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Has reports whether the local repository holds the block. It never
// fetches from the network.
func (s *Store) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	_, err := s.run(ctx, nil, "block", "stat", "--offline", id.String())
	if err == nil {
		return true, nil
	}
	if notFound(err) {
		return false, nil
	}
	return false, err
}

func (s *Store) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.bin, args...)
	if s.env != nil {
		cmd.Env = s.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if msg := strings.TrimSpace(string(ee.Stderr)); msg != "" {
			return nil, fmt.Errorf("ipfs: %s", msg)
		}
	}
	return nil, fmt.Errorf("ipfs: %w", err)
}

func notFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "blockservice: key not found")
}

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "ipfs",
		Description: "raw blocks in a local Kubo repository (ipfs CLI)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		Keys:        []string{"bin", "repo", "pin"},
		Open: func(cfg map[string]string) (storage.Store, func() error, error) {
			opts := Options{Bin: cfg["bin"], Repo: cfg["repo"]}
			switch strings.ToLower(cfg["pin"]) {
			case "", "false", "0", "no":
			case "true", "1", "yes":
				opts.Pin = true
			default:
				return nil, nil, fmt.Errorf("ipfs: invalid pin %q", cfg["pin"])
			}
			return New(opts), nil, nil
		},
	})
}
