package registry

import (
	"context"

	"github.com/zenfs/zenfs/fs"
	"github.com/zenfs/zenfs/metrics"
	"github.com/zenfs/zenfs/mount"
)

// MountSpec pairs an absolute prefix with the mount configuration to
// resolve and install there.
type MountSpec struct {
	Prefix string
	Config any
}

// ConfigureOptions is the top-level configuration accepted by Configure,
// per spec §4.5's configure({mounts, uid, gid, disableAsyncCache}).
type ConfigureOptions struct {
	Mounts            []MountSpec
	Uid               uint32
	Gid               uint32
	DisableAsyncCache bool
}

// Configure establishes process credentials and installs each mount in
// opts.Mounts into table, in order. The first failure aborts, leaving
// earlier mounts installed.
func Configure(ctx context.Context, table *mount.Table, opts ConfigureOptions) (fs.Credential, error) {
	cred := fs.Credential{Uid: opts.Uid, Gid: opts.Gid, Euid: opts.Uid, Egid: opts.Gid}
	for _, m := range opts.Mounts {
		fsys, err := ResolveMountConfig(ctx, m.Config)
		if err != nil {
			return cred, err
		}
		if err := table.Mount(m.Prefix, metrics.Instrument(m.Prefix, fsys)); err != nil {
			return cred, err
		}
	}
	return cred, nil
}

// ConfigureSingle replaces the root mount ("/") with the resolved cfg,
// per spec §4.5.
func ConfigureSingle(ctx context.Context, table *mount.Table, cfg any) error {
	fsys, err := ResolveMountConfig(ctx, cfg)
	if err != nil {
		return err
	}
	table.Unmount("/") // best-effort; ENOENT if nothing was mounted yet
	return table.Mount("/", metrics.Instrument("/", fsys))
}
