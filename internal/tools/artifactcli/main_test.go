package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/credledger/storage"
	"xdao.co/credledger/storage/bundle"
	"xdao.co/credledger/storage/localfs"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "deploy.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"hash":"d1"}`), 0o600))

	var out, errOut bytes.Buffer
	code := run(ctx, []string{"put", "--set", "dir=" + filepath.Join(dir, "blocks"), src}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	id := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(id, "bafkrei"), id)

	out.Reset()
	code = run(ctx, []string{"get", "--set", "dir=" + filepath.Join(dir, "blocks"), "--cid", id}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Equal(t, `{"hash":"d1"}`, out.String())

	code = run(ctx, []string{"get", "--set", "dir=" + dir, "--cid", "not-a-cid"}, &out, &errOut)
	assert.Equal(t, 2, code)
}

func TestImportBundle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	srcStore, err := localfs.New(filepath.Join(dir, "src"))
	require.NoError(t, err)
	rec, err := storage.NewRecorder(srcStore, filepath.Join(dir, "src-manifests"))
	require.NoError(t, err)
	require.NoError(t, rec.Record(ctx, "7", "query", "raw", []byte(`{"raw":true}`)))
	require.NoError(t, rec.Record(ctx, "7", "query", "parsed", []byte(`{"id":"7"}`)))
	m, err := rec.Manifest("7")
	require.NoError(t, err)

	tarPath := filepath.Join(dir, "7.tar")
	f, err := os.Create(tarPath)
	require.NoError(t, err)
	require.NoError(t, bundle.Export(ctx, f, srcStore, m))
	require.NoError(t, f.Close())

	var out, errOut bytes.Buffer
	manifests := filepath.Join(dir, "dst-manifests")
	code := run(ctx, []string{"import", "--set", "dir=" + filepath.Join(dir, "dst"), "--manifests", manifests, tarPath}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "credential 7: 2 artifacts imported")
	_, err = os.Stat(filepath.Join(manifests, "credential_7.json"))
	assert.NoError(t, err)
}

func TestListBackends(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"put", "--list-backends"}, &out, &errOut)
	require.Equal(t, 0, code)
	for _, name := range []string{"grpc", "ipfs", "localfs"} {
		assert.Contains(t, out.String(), name+"\t")
	}
}
