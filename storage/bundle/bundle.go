// Package bundle packs the artifacts of one credential into a deterministic
// TAR archive and imports such archives into another store.
//
// Layout:
//
//	blocks/<cid>                   artifact bytes
//	manifests/credential_<id>.json the manifest that names them
//	index.json                     block list and per-artifact labels
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/credledger/storage"
)

// FormatVersion is the index.json schema version.
const FormatVersion = 1

var epoch0 = time.Unix(0, 0).UTC()

type index struct {
	Version   int     `json:"version"`
	Item      string  `json:"item"`
	CIDCodec  string  `json:"cid_codec"`
	Multihash string  `json:"multihash"`
	Blocks    []block `json:"blocks"`
	Labels    []label `json:"labels"`
}

type block struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

type label struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

// Export writes the artifacts listed in m, the manifest itself and an index.
// Entries are sorted and headers normalized, so the same manifest and store
// always produce the same bytes.
func Export(ctx context.Context, w io.Writer, s storage.Store, m *storage.Manifest) error {
	if s == nil || m == nil {
		return fmt.Errorf("bundle: store and manifest are required")
	}
	ids, err := m.CIDs()
	if err != nil {
		return err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	tw := tar.NewWriter(w)
	fail := func(err error) error {
		_ = tw.Close()
		return err
	}

	idx := index{Version: FormatVersion, Item: m.Item, CIDCodec: "raw", Multihash: "sha2-256"}
	for _, id := range ids {
		b, err := s.Get(ctx, id)
		if err != nil {
			return fail(fmt.Errorf("bundle: %s: %w", id, err))
		}
		if err := storage.Verify(id, b); err != nil {
			return fail(err)
		}
		if err := writeFile(tw, "blocks/"+id.String(), b); err != nil {
			return fail(err)
		}
		idx.Blocks = append(idx.Blocks, block{CID: id.String(), Size: len(b)})
	}

	mb, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fail(err)
	}
	if err := writeFile(tw, "manifests/"+storage.ManifestName(m.Item), append(mb, '\n')); err != nil {
		return fail(err)
	}

	// Labels name the latest artifact per step and kind.
	latest := map[string]string{}
	for _, a := range m.Artifacts {
		latest[a.Step+"/"+a.Kind] = a.CID
	}
	names := make([]string, 0, len(latest))
	for n := range latest {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		idx.Labels = append(idx.Labels, label{Name: n, CID: latest[n]})
	}

	ib, err := json.Marshal(idx)
	if err != nil {
		return fail(err)
	}
	if err := writeFile(tw, "index.json", append(ib, '\n')); err != nil {
		return fail(err)
	}
	return tw.Close()
}

// Import copies every block of a bundle into s and returns the manifest it
// carries. Each block must hash to its file name. Unknown entries are errors.
func Import(ctx context.Context, r io.Reader, s storage.Store) (*storage.Manifest, error) {
	if s == nil {
		return nil, fmt.Errorf("bundle: nil store")
	}
	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var manifest *storage.Manifest

	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		name := cleanPath(h.Name)
		if name == "" {
			return nil, fmt.Errorf("bundle: invalid entry path %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			return nil, fmt.Errorf("bundle: unexpected entry type %v (%s)", h.Typeflag, name)
		}

		switch {
		case name == "index.json":
			_, _ = io.Copy(io.Discard, tr)
		case strings.HasPrefix(name, "manifests/"):
			if manifest != nil {
				return nil, fmt.Errorf("bundle: more than one manifest")
			}
			var m storage.Manifest
			if err := json.NewDecoder(tr).Decode(&m); err != nil {
				return nil, fmt.Errorf("bundle: %s: %w", name, err)
			}
			manifest = &m
		case strings.HasPrefix(name, "blocks/"):
			id, err := cid.Decode(strings.TrimPrefix(name, "blocks/"))
			if err != nil || !id.Defined() {
				return nil, storage.ErrInvalidCID
			}
			if _, dup := seen[id.String()]; dup {
				return nil, fmt.Errorf("bundle: duplicate block %s", id)
			}
			seen[id.String()] = struct{}{}
			payload, err := io.ReadAll(tr)
			if err != nil {
				return nil, err
			}
			if err := storage.Verify(id, payload); err != nil {
				return nil, fmt.Errorf("bundle: %s: %w", id, err)
			}
			got, err := s.Put(ctx, payload)
			if err != nil {
				return nil, err
			}
			if !got.Equals(id) {
				return nil, storage.ErrCIDMismatch
			}
		default:
			return nil, fmt.Errorf("bundle: unknown entry %s", name)
		}
	}

	if manifest == nil {
		return nil, fmt.Errorf("bundle: no manifest")
	}
	for _, a := range manifest.Artifacts {
		if _, ok := seen[a.CID]; !ok {
			return nil, fmt.Errorf("bundle: manifest names %s which is not in the bundle", a.CID)
		}
	}
	return manifest, nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanPath(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = strings.TrimPrefix(strings.TrimPrefix(name, "./"), "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
