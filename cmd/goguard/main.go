// Command goguard runs the goGuard policy engine as an HTTP sidecar and
// carries the operator tooling around it: runtime settings, recovery
// sweeps, schema bootstrap and a load generator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfg config

var rootCmd = &cobra.Command{
	Use:   "goguard",
	Short: "Forum anti-abuse and authorization engine",
	Long: `goguard gates forum actions through auth packages and flood control,
and issues single-use credential recovery tokens.

Configuration comes from GUARD_* environment variables.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "goguard: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, settingsCmd, sweepCmd, packagesCmd, schemaCmd, loadtestCmd)
}
