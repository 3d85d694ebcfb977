// Command zenfsctl serves a mount table described by a YAML manifest and
// offers one-shot smoke-testing operations against it, grounded on
// cmd/mount and cmd/config's cobra command wiring.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zenfs/zenfs/internal/zlog"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "zenfsctl",
	Short: "Operate a zenfs mount table",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			zlog.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
