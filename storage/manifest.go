package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/credledger/cidutil"
)

// Artifact is one manifest entry.
type Artifact struct {
	Step       string    `json:"step"`
	Kind       string    `json:"kind"`
	CID        string    `json:"cid"`
	Size       int       `json:"size"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Manifest lists the artifacts recorded for one credential, oldest first.
type Manifest struct {
	Item      string     `json:"item"`
	Artifacts []Artifact `json:"artifacts"`
}

// Latest returns the most recent artifact recorded for step and kind.
func (m *Manifest) Latest(step, kind string) (Artifact, bool) {
	for i := len(m.Artifacts) - 1; i >= 0; i-- {
		a := m.Artifacts[i]
		if a.Step == step && a.Kind == kind {
			return a, true
		}
	}
	return Artifact{}, false
}

// CIDs returns the distinct artifact CIDs in the manifest.
func (m *Manifest) CIDs() ([]cid.Cid, error) {
	seen := map[string]struct{}{}
	var out []cid.Cid
	for _, a := range m.Artifacts {
		if _, ok := seen[a.CID]; ok {
			continue
		}
		id, err := cidutil.Parse(a.CID)
		if err != nil {
			return nil, fmt.Errorf("storage: manifest for %s: %w", m.Item, err)
		}
		seen[a.CID] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// ManifestName is the file name of the manifest for item.
func ManifestName(item string) string {
	var b strings.Builder
	for _, r := range item {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return "credential_" + b.String() + ".json"
}

// Recorder writes artifacts to a Store and indexes them in per-credential
// manifests under Dir. It is safe for concurrent use within one process.
type Recorder struct {
	Store Store
	Dir   string
	// Now stamps manifest entries; time.Now when nil.
	Now func() time.Time

	mu sync.Mutex
}

func NewRecorder(store Store, dir string) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("storage: recorder needs a store")
	}
	if dir == "" {
		return nil, errors.New("storage: recorder needs a manifest directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{Store: store, Dir: dir}, nil
}

// Record stores payload and appends it to the manifest of item.
func (r *Recorder) Record(ctx context.Context, item, step, kind string, payload []byte) error {
	id, err := r.Store.Put(ctx, payload)
	if err != nil {
		return fmt.Errorf("storage: put %s/%s artifact: %w", step, kind, err)
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.load(item)
	if err != nil {
		return err
	}
	m.Artifacts = append(m.Artifacts, Artifact{Step: step, Kind: kind, CID: id.String(), Size: len(payload), RecordedAt: now().UTC()})
	return r.save(m)
}

// Manifest returns the manifest of item, or ErrNotFound.
func (r *Recorder) Manifest(item string) (*Manifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.load(item)
	if err != nil {
		return nil, err
	}
	if len(m.Artifacts) == 0 {
		return nil, ErrNotFound
	}
	return m, nil
}

// Adopt merges an imported manifest into the local one for the same item.
// Entries already present are skipped; the artifacts themselves must already
// be in the store.
func (r *Recorder) Adopt(in *Manifest) error {
	if in == nil || in.Item == "" {
		return errors.New("storage: adopt: manifest has no item")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.load(in.Item)
	if err != nil {
		return err
	}
	type key struct {
		step, kind, cid string
		at              int64
	}
	seen := make(map[key]bool, len(m.Artifacts))
	for _, a := range m.Artifacts {
		seen[key{a.Step, a.Kind, a.CID, a.RecordedAt.UnixNano()}] = true
	}
	for _, a := range in.Artifacts {
		k := key{a.Step, a.Kind, a.CID, a.RecordedAt.UnixNano()}
		if !seen[k] {
			m.Artifacts = append(m.Artifacts, a)
			seen[k] = true
		}
	}
	return r.save(m)
}

// Load fetches the bytes of the latest step/kind artifact of item.
func (r *Recorder) Load(ctx context.Context, item, step, kind string) ([]byte, error) {
	m, err := r.Manifest(item)
	if err != nil {
		return nil, err
	}
	a, ok := m.Latest(step, kind)
	if !ok {
		return nil, ErrNotFound
	}
	id, err := cidutil.Parse(a.CID)
	if err != nil {
		return nil, err
	}
	return r.Store.Get(ctx, id)
}

func (r *Recorder) load(item string) (*Manifest, error) {
	b, err := os.ReadFile(filepath.Join(r.Dir, ManifestName(item)))
	if os.IsNotExist(err) {
		return &Manifest{Item: item}, nil
	}
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("storage: manifest for %s: %w", item, err)
	}
	if m.Item != item {
		return nil, fmt.Errorf("storage: manifest %s belongs to %q", ManifestName(item), m.Item)
	}
	return &m, nil
}

func (r *Recorder) save(m *Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(r.Dir, ManifestName(m.Item))
	tmp, err := os.CreateTemp(r.Dir, ".manifest-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
