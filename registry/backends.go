package registry

import (
	"context"

	"github.com/zenfs/zenfs/backend/boltstore"
	"github.com/zenfs/zenfs/backend/memstore"
	"github.com/zenfs/zenfs/fs"
	"github.com/zenfs/zenfs/storefs"
	"github.com/zenfs/zenfs/vfs"
)

func init() {
	Register(&Backend{
		Name: "memstore",
		Options: []Option{
			{Name: "name", Type: TypeString, Required: false, Description: "label reported in Metadata().Name"},
		},
		Create: func(ctx context.Context, opts Options) (fs.FileSystem, error) {
			name, _ := opts["name"].(string)
			if name == "" {
				name = "memstore"
			}
			return storefs.New(name, memstore.New(), fs.Root), nil
		},
	})

	Register(&Backend{
		Name: "boltstore",
		Options: []Option{
			{Name: "path", Type: TypeString, Required: true, Description: "filesystem path to the bolt database file"},
		},
		Create: func(ctx context.Context, opts Options) (fs.FileSystem, error) {
			path, _ := opts["path"].(string)
			s, err := boltstore.Open(path)
			if err != nil {
				return nil, err
			}
			return storefs.New("boltstore:"+path, s, fs.Root), nil
		},
	})

	Register(&Backend{
		Name: "readonly",
		Options: []Option{
			{Name: "upstream", Type: TypeObject, Required: true, Description: "mount configuration to wrap read-only"},
		},
		Create: func(ctx context.Context, opts Options) (fs.FileSystem, error) {
			upstream, ok := opts["upstream"].(fs.FileSystem)
			if !ok {
				return nil, fs.NewError("readonly", "", fs.EINVAL)
			}
			return vfs.NewReadonly(upstream), nil
		},
	})

	Register(&Backend{
		Name: "locked",
		Options: []Option{
			{Name: "upstream", Type: TypeObject, Required: true, Description: "mount configuration to wrap with mutual exclusion"},
		},
		Create: func(ctx context.Context, opts Options) (fs.FileSystem, error) {
			upstream, ok := opts["upstream"].(fs.FileSystem)
			if !ok {
				return nil, fs.NewError("locked", "", fs.EINVAL)
			}
			return vfs.NewLocked(upstream), nil
		},
	})

	Register(&Backend{
		Name: "overlay",
		Options: []Option{
			{Name: "w", Type: TypeObject, Required: true, Description: "writable layer mount configuration"},
			{Name: "r", Type: TypeObject, Required: true, Description: "read-only layer mount configuration"},
		},
		Create: func(ctx context.Context, opts Options) (fs.FileSystem, error) {
			w, wOk := opts["w"].(fs.FileSystem)
			r, rOk := opts["r"].(fs.FileSystem)
			if !wOk || !rOk {
				return nil, fs.NewError("overlay", "", fs.EINVAL)
			}
			return vfs.NewOverlay(w, r), nil
		},
	})
}
