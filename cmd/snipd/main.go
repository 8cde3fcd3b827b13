// snipd ingests source repositories, extracts reusable code snippets,
// embeds them, and serves semantic search over HTTP and MCP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "snipd",
		Short:         "Code snippet ingestion and semantic search daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"path to config file (default ~/.config/snipd/config.yaml)")

	root.AddCommand(serveCmd(), mcpCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the snipd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("snipd", version)
		},
	}
}
