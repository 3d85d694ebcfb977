package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/zenfs/zenfs/internal/zlog"
	"github.com/zenfs/zenfs/mount"
	"github.com/zenfs/zenfs/rc"
	"github.com/zenfs/zenfs/registry"
)

var (
	serveConfigPath string
	serveRCAddr     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load a mount manifest and serve its rc introspection API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "mounts.yaml", "path to the mount manifest")
	serveCmd.Flags().StringVar(&serveRCAddr, "rc-addr", ":5572", "address to serve the rc API on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	m, err := loadManifest(serveConfigPath)
	if err != nil {
		return err
	}

	table := mount.New()
	if _, err := registry.Configure(ctx, table, m.toConfigureOptions()); err != nil {
		return fmt.Errorf("configure mounts: %w", err)
	}

	for _, prefix := range table.List() {
		zlog.Infof(zlog.Str("zenfsctl"), "mounted %s", prefix)
	}

	srv := rc.New(table)
	zlog.Infof(zlog.Str("zenfsctl"), "rc server listening on %s", serveRCAddr)
	return http.ListenAndServe(serveRCAddr, srv)
}
