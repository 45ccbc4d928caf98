package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "netshell",
		Short:         "Event-driven network server shell",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())
	return root
}
