/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command reqguard runs the HTTP service guarded by the distributed rate limiter
// and backed by the adaptive cache.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/acronis/go-reqguard/internal/libinfo"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reqguard",
		Short:         "Rate-limited HTTP service with an adaptive cache",
		Version:       libinfo.GetLibVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newAnalyzeQueryCmd(),
		newConfigCmd(),
	)
	return root
}
