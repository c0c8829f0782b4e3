package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	goGuard "github.com/MrEthical07/goGuard"
)

var packagesCmd = &cobra.Command{
	Use:   "packages [NAME...]",
	Short: "List auth packages or validate package names",
	Long: `Without arguments packages lists the registered auth packages. With
arguments it checks each name and fails on the first unknown one, which
is how a forum editor should vet its package fields before saving.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := goGuard.New().
			WithConfig(offlineConfig()).
			WithActivityStore(nopActivity{}).
			WithSettings(cfg.Settings.Memory()).
			Build()
		if err != nil {
			return err
		}
		defer engine.Close()

		out := cmd.OutOrStdout()
		if len(args) == 0 {
			for _, name := range engine.AuthPackages() {
				fmt.Fprintln(out, name)
			}
			return nil
		}
		for _, name := range args {
			if err := engine.ValidateAuthPackage(name); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s ok\n", name)
		}
		return nil
	},
}

// offlineConfig builds an engine that never touches a backend, for
// commands that only inspect static state.
func offlineConfig() goGuard.Config {
	c := goGuard.DefaultConfig()
	c.Recovery.Enabled = false
	c.Metrics.Enabled = false
	return c
}

type nopActivity struct{}

func (nopActivity) Record(context.Context, string, time.Time) error { return nil }

func (nopActivity) Window(context.Context, string, time.Time, time.Time) (goGuard.ActivityWindow, error) {
	return goGuard.ActivityWindow{}, nil
}

func (nopActivity) Lifetime(context.Context, string) (int64, error) { return 0, nil }
