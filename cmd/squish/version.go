package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"squish/internal/sidecar"
)

// version is injected at build time via -ldflags "-X main.version=...".
var version = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the squish version",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "squish %s (protocol %d)\n", version, sidecar.ProtocolVersion)
			return nil
		},
	}
}
