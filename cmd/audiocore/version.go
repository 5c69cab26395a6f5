package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "audiocore %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
	},
}

// versionAndOS returns the body of a version/OS reply.
func versionAndOS() []byte {
	return []byte(fmt.Sprintf("%s %s", version, runtime.GOOS))
}
