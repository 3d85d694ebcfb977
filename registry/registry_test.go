package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenfs/zenfs/fs"
	"github.com/zenfs/zenfs/mount"
)

func TestResolveMemstoreBackend(t *testing.T) {
	ctx := context.Background()
	fsys, err := ResolveMountConfig(ctx, Config{Backend: "memstore"})
	require.NoError(t, err)
	st, err := fsys.Stat(ctx, "/", fs.Root)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestResolveUnknownBackendFails(t *testing.T) {
	_, err := ResolveMountConfig(context.Background(), Config{Backend: "does-not-exist"})
	assert.ErrorIs(t, err, fs.EINVAL)
}

func TestResolveBoltstoreRequiresPath(t *testing.T) {
	_, err := ResolveMountConfig(context.Background(), Config{Backend: "boltstore"})
	assert.ErrorIs(t, err, fs.EINVAL)
}

func TestResolveNestedReadonlyOverMemstore(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Backend: "readonly",
		Options: Options{
			"upstream": Config{Backend: "memstore"},
		},
	}
	fsys, err := ResolveMountConfig(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, fsys.Metadata(ctx).Readonly)

	err = fsys.Mkdir(ctx, "/a", 0o755, fs.Root)
	assert.ErrorIs(t, err, fs.EROFS)
}

func TestResolveNestedOverlayOfTwoMemstores(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Backend: "overlay",
		Options: Options{
			"w": Config{Backend: "memstore"},
			"r": Config{Backend: "memstore"},
		},
	}
	fsys, err := ResolveMountConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, fsys.Mkdir(ctx, "/a", 0o755, fs.Root))
	st, err := fsys.Stat(ctx, "/a", fs.Root)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestResolveLockedOfOverlayOfReadonlyAndMemstore(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Backend: "locked",
		Options: Options{
			"upstream": Config{
				Backend: "overlay",
				Options: Options{
					"w": Config{Backend: "memstore"},
					"r": Config{Backend: "readonly", Options: Options{"upstream": Config{Backend: "memstore"}}},
				},
			},
		},
	}
	fsys, err := ResolveMountConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, fsys.Mkdir(ctx, "/dir", 0o755, fs.Root))
}

func TestResolveDepthLimitExceeded(t *testing.T) {
	ctx := context.Background()
	var cfg any = Config{Backend: "memstore"}
	for i := 0; i < maxResolveDepth+2; i++ {
		cfg = Config{Backend: "readonly", Options: Options{"upstream": cfg}}
	}
	_, err := ResolveMountConfig(ctx, cfg)
	assert.ErrorIs(t, err, fs.EINVAL)
}

func TestIsAvailableFalseReturnsEPERM(t *testing.T) {
	Register(&Backend{
		Name:        "always-unavailable",
		IsAvailable: func() bool { return false },
		Create: func(ctx context.Context, opts Options) (fs.FileSystem, error) {
			t.Fatal("Create must not be called when unavailable")
			return nil, nil
		},
	})
	_, err := ResolveMountConfig(context.Background(), Config{Backend: "always-unavailable"})
	assert.ErrorIs(t, err, fs.EPERM)
}

func TestConfigureInstallsMounts(t *testing.T) {
	ctx := context.Background()
	table := mount.New()
	_, err := Configure(ctx, table, ConfigureOptions{
		Mounts: []MountSpec{
			{Prefix: "/", Config: Config{Backend: "memstore"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/"}, table.List())
}

func TestConfigureSingleReplacesRoot(t *testing.T) {
	ctx := context.Background()
	table := mount.New()
	require.NoError(t, ConfigureSingle(ctx, table, Config{Backend: "memstore"}))
	require.NoError(t, ConfigureSingle(ctx, table, Config{Backend: "memstore", Options: Options{"name": "second"}}))
	assert.Equal(t, []string{"/"}, table.List())
}
