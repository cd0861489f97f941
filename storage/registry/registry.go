// Package registry selects artifact store backends by name.
//
// Backends register themselves in init() and are linked into a binary by
// importing their package, usually as a blank import:
//
//	import _ "xdao.co/credledger/storage/localfs"
//
// Each backend is opened from a string map, which is how both the YAML
// configuration and command-line flags describe it.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"xdao.co/credledger/storage"
)

// Usage restricts which programs accept a backend.
type Usage uint8

const (
	// UsageCLI marks backends available to the credledger CLI.
	UsageCLI Usage = 1 << iota
	// UsageDaemon marks backends the artifact daemon can serve.
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }

// Backend opens one kind of store.
type Backend struct {
	Name        string
	Description string
	Usage       Usage
	// Keys lists the configuration keys the backend reads.
	Keys []string
	// Open returns the store and an optional close function.
	Open func(cfg map[string]string) (storage.Store, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("registry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("registry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("registry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("registry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// Open opens the named backend with cfg. Unknown keys are rejected.
func Open(name string, usage Usage, cfg map[string]string) (storage.Store, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("registry: unknown backend %q (have %s)", name, strings.Join(Names(usage), ", "))
	}
	if !b.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("registry: backend %q not supported in this program", name)
	}
	for k := range cfg {
		if !contains(b.Keys, k) {
			return nil, nil, fmt.Errorf("registry: backend %q does not accept %q", name, k)
		}
	}
	return b.Open(cfg)
}

func contains(keys []string, k string) bool {
	for _, s := range keys {
		if s == k {
			return true
		}
	}
	return false
}
