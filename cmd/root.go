package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the outlook-mcp application
var rootCmd = &cobra.Command{
	Use:   "outlook-mcp",
	Short: "MCP server exposing Outlook mail with managed credentials",
	Long: `outlook-mcp serves read-only Outlook mail tools over the Model Context
Protocol. OAuth credentials live encrypted in Postgres and are refreshed
ahead of expiry; clients never see or handle raw grants.

It can run as:
  - A streamable HTTP server behind a trusted gateway
  - A stdio MCP server for a single local user`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "outlook-mcp version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newKeygenCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
