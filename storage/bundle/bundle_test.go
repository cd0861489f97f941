package bundle_test

import (
	"archive/tar"
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/credledger/cidutil"
	"xdao.co/credledger/storage"
	"xdao.co/credledger/storage/bundle"
	"xdao.co/credledger/storage/localfs"
)

func recorded(t *testing.T) (*storage.Recorder, *localfs.Store) {
	t.Helper()
	dir := t.TempDir()
	blocks, err := localfs.New(filepath.Join(dir, "blocks"))
	require.NoError(t, err)
	rec, err := storage.NewRecorder(blocks, dir)
	require.NoError(t, err)
	rec.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	for _, a := range []struct{ step, kind, body string }{
		{"query", "raw", `{"fields":{}}`},
		{"query", "parsed", `{"id":"7"}`},
		{"verify", "deploy", `{"hash":"abc"}`},
		{"verify", "outcome", `{"execution_info":{}}`},
	} {
		require.NoError(t, rec.Record(ctx, "7", a.step, a.kind, []byte(a.body)))
	}
	return rec, blocks
}

func TestBundle_ExportIsDeterministic(t *testing.T) {
	rec, blocks := recorded(t)
	m, err := rec.Manifest("7")
	require.NoError(t, err)

	var a, b bytes.Buffer
	require.NoError(t, bundle.Export(context.Background(), &a, blocks, m))
	require.NoError(t, bundle.Export(context.Background(), &b, blocks, m))
	assert.True(t, bytes.Equal(a.Bytes(), b.Bytes()), "expected deterministic bundle bytes")
}

func TestBundle_ImportRoundTrip(t *testing.T) {
	rec, blocks := recorded(t)
	m, err := rec.Manifest("7")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, bundle.Export(context.Background(), &buf, blocks, m))

	dst, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	got, err := bundle.Import(context.Background(), &buf, dst)
	require.NoError(t, err)
	assert.Equal(t, "7", got.Item)
	require.Len(t, got.Artifacts, 4)

	a, ok := got.Latest("verify", "deploy")
	require.True(t, ok)
	id, err := cidutil.Parse(a.CID)
	require.NoError(t, err)
	b, err := dst.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, `{"hash":"abc"}`, string(b))
}

func TestBundle_ImportRejectsCIDMismatch(t *testing.T) {
	other := cidutil.String([]byte("other"))
	tarBytes := makeTar(t, "blocks/"+other, []byte("good"))

	dst, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	_, err = bundle.Import(context.Background(), bytes.NewReader(tarBytes), dst)
	assert.ErrorIs(t, err, storage.ErrCIDMismatch)
}

func TestBundle_ImportRejectsTraversal(t *testing.T) {
	dst, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	_, err = bundle.Import(context.Background(), bytes.NewReader(makeTar(t, "../etc/passwd", []byte("x"))), dst)
	assert.Error(t, err)
}

func makeTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	h := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), ModTime: time.Unix(0, 0).UTC(), Typeflag: tar.TypeReg}
	require.NoError(t, tw.WriteHeader(h))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	return buf.Bytes()
}
