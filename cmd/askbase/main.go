package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/askbase/askbase/internal/cli"
	"github.com/askbase/askbase/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "askbase",
		Short: "Askbase CLI - ask questions against your documents",
		Long: `Askbase CLI uploads documents and asks questions against a running askbase server.

Environment variables:
  ASKBASE_API_URL          API base URL (default: http://localhost:8080)
  ASKBASE_PROVIDER_CONFIG  Optional JSON guest provider config`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env)")
	rootCmd.PersistentFlags().String("provider-config", "", "JSON guest provider config (overrides env)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.UploadCmd())
	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.ListCmd())
	rootCmd.AddCommand(client.DeleteCmd())
	rootCmd.AddCommand(client.StatsCmd())
	rootCmd.AddCommand(client.ModelsCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
