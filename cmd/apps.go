// File: cmd/apps.go
package cmd

import (
	"fmt"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/deskpilot-cli/internal/observability"
	"github.com/xkilldash9x/deskpilot-cli/internal/platform"
	"github.com/xkilldash9x/deskpilot-cli/internal/registry"
	"github.com/xkilldash9x/deskpilot-cli/internal/state"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newOneShotRegistry builds a registry over the real host for a single
// command invocation.
func newOneShotRegistry() *registry.Registry {
	logger := observability.GetLogger()
	store := state.NewStore(appCfg.State(), logger)
	host := platform.NewHeadlessHost(logger)
	return registry.New(appCfg.Apps(), host, store, logger)
}

// newAppsCmd creates the `apps` command group.
func newAppsCmd() *cobra.Command {
	appsCmd := &cobra.Command{
		Use:   "apps",
		Short: "Inspect and control managed applications",
	}
	appsCmd.AddCommand(
		newAppsListCmd(),
		newAppsStartCmd(),
		newAppsFocusCmd(),
		newAppsCloseCmd(),
		newAppsKillCmd(),
	)
	return appsCmd
}

type appRow struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Enabled     bool     `json:"enabled"`
	Launch      string   `json:"launch"`
	Policy      string   `json:"single_instance"`
	Tags        []string `json:"tags,omitempty"`
}

func newAppsListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Lists the configured applications",
		RunE: func(cmd *cobra.Command, args []string) error {
			defs := appCfg.Apps()
			names := make([]string, 0, len(defs))
			for name := range defs {
				names = append(names, name)
			}
			sort.Strings(names)

			rows := make([]appRow, 0, len(names))
			for _, name := range names {
				def := defs[name]
				launch := def.Path
				if launch == "" {
					launch = "shell: " + def.Shell
				}
				rows = append(rows, appRow{
					Name:        name,
					Description: def.Description,
					Enabled:     def.Enabled,
					Launch:      launch,
					Policy:      string(def.EffectivePolicy()),
					Tags:        def.Tags,
				})
			}

			if asJSON {
				out, err := json.MarshalIndent(rows, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(out))
				return nil
			}
			for _, row := range rows {
				status := "enabled"
				if !row.Enabled {
					status = "disabled"
				}
				cmd.Printf("%-20s %-9s %-8s %s\n", row.Name, status, row.Policy, row.Launch)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func newAppsStartCmd() *cobra.Command {
	var (
		preset string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "start <app> [-- extra args...]",
		Short: "Launches a configured application",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := newOneShotRegistry()
			rec, err := reg.Start(cmd.Context(), registry.StartRequest{
				App:       args[0],
				Preset:    preset,
				ExtraArgs: args[1:],
			})
			if err != nil {
				return err
			}
			if asJSON {
				out, err := json.MarshalIndent(rec, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(out))
				return nil
			}
			cmd.Printf("started %s instance=%s pid=%d\n", rec.App, rec.InstanceID, rec.PID)
			return nil
		},
	}
	cmd.Flags().StringVar(&preset, "preset", "", "argument preset to apply")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func newAppsFocusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "focus <app> [target]",
		Short: "Brings an application window to the foreground",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) > 1 {
				target = args[1]
			}
			return newOneShotRegistry().Focus(cmd.Context(), args[0], target)
		},
	}
	return cmd
}

func newAppsCloseCmd() *cobra.Command {
	var (
		timeout time.Duration
		force   bool
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "close <app> [target]",
		Short: "Closes an application gracefully",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) > 1 {
				target = args[1]
			}
			return newOneShotRegistry().Close(cmd.Context(), args[0], target, timeout, force, all)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "graceful shutdown deadline")
	cmd.Flags().BoolVar(&force, "force", false, "hard-kill instances that outlive the deadline")
	cmd.Flags().BoolVar(&all, "all", false, "close every instance")
	return cmd
}

func newAppsKillCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "kill <app> [target]",
		Short: "Hard-kills an application",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) > 1 {
				target = args[1]
			}
			if err := newOneShotRegistry().Kill(cmd.Context(), args[0], target, all); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "killed %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "kill every instance")
	return cmd
}
