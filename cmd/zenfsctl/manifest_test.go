package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenfs/zenfs/mount"
	"github.com/zenfs/zenfs/registry"
)

const testManifest = `
uid: 1000
gid: 1000
mounts:
  - prefix: /
    config:
      backend: overlay
      options:
        w:
          backend: memstore
        r:
          backend: readonly
          options:
            upstream:
              backend: memstore
`

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadManifestParsesNestedBackends(t *testing.T) {
	path := writeManifest(t, testManifest)
	m, err := loadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), m.UID)
	require.Len(t, m.Mounts, 1)
	assert.Equal(t, "/", m.Mounts[0].Prefix)
	assert.Equal(t, "overlay", m.Mounts[0].Config.Backend)
}

func TestToConfigureOptionsResolvesNestedConfig(t *testing.T) {
	path := writeManifest(t, testManifest)
	m, err := loadManifest(path)
	require.NoError(t, err)

	opts := m.toConfigureOptions()
	require.Len(t, opts.Mounts, 1)
	cfg := opts.Mounts[0].Config.(registry.Config)
	assert.Equal(t, "overlay", cfg.Backend)

	w, ok := cfg.Options["w"].(registry.Config)
	require.True(t, ok)
	assert.Equal(t, "memstore", w.Backend)

	r, ok := cfg.Options["r"].(registry.Config)
	require.True(t, ok)
	assert.Equal(t, "readonly", r.Backend)
}

func TestManifestResolvesAndMounts(t *testing.T) {
	ctx := context.Background()
	path := writeManifest(t, testManifest)
	m, err := loadManifest(path)
	require.NoError(t, err)

	table := mount.New()
	cred, err := registry.Configure(ctx, table, m.toConfigureOptions())
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), cred.Uid)

	fsys, rel, err := table.Resolve("/")
	require.NoError(t, err)
	st, err := fsys.Stat(ctx, rel, cred)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := loadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
