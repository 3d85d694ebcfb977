package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zenfs/zenfs/fs"
	"github.com/zenfs/zenfs/mount"
	"github.com/zenfs/zenfs/registry"
)

var opsConfigPath string

func addOpsFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&opsConfigPath, "config", "mounts.yaml", "path to the mount manifest")
}

// openTable loads the manifest and resolves its mounts into a *mount.Table
// for a single one-shot operation, rather than talking to a running serve
// instance's (read-only) rc API.
func openTable(ctx context.Context) (*mount.Table, fs.Credential, error) {
	m, err := loadManifest(opsConfigPath)
	if err != nil {
		return nil, fs.Credential{}, err
	}
	table := mount.New()
	cred, err := registry.Configure(ctx, table, m.toConfigureOptions())
	if err != nil {
		return nil, fs.Credential{}, fmt.Errorf("configure mounts: %w", err)
	}
	return table, cred, nil
}

var lsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List the entries of a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		table, cred, err := openTable(ctx)
		if err != nil {
			return err
		}
		fsys, rel, err := table.Resolve(args[0])
		if err != nil {
			return err
		}
		entries, err := fsys.Readdir(ctx, rel, cred)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Println(e.Name)
		}
		return nil
	},
}

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Print the stat record for a path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		table, cred, err := openTable(ctx)
		if err != nil {
			return err
		}
		fsys, rel, err := table.Resolve(args[0])
		if err != nil {
			return err
		}
		st, err := fsys.Stat(ctx, rel, cred)
		if err != nil {
			return err
		}
		fmt.Printf("size=%d mode=%o uid=%d gid=%d ino=%d\n", st.Size, st.Mode, st.Uid, st.Gid, st.Ino)
		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		table, cred, err := openTable(ctx)
		if err != nil {
			return err
		}
		fsys, rel, err := table.Resolve(args[0])
		if err != nil {
			return err
		}
		return fsys.Mkdir(ctx, rel, fs.S_IRWXU|fs.S_IRWXG|fs.S_IRWXO, cred)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{lsCmd, statCmd, mkdirCmd} {
		addOpsFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
}
