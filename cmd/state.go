// File: cmd/state.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/deskpilot-cli/internal/observability"
	"github.com/xkilldash9x/deskpilot-cli/internal/state"
)

// newStateCmd creates the `state` command: dumps the seeded state snapshot.
// Process and activity entries fill in while an agent is running; a cold
// invocation shows the configured seeds.
func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Dumps the state snapshot as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := state.NewStore(appCfg.State(), observability.GetLogger())
			out, err := json.MarshalIndent(store.Snapshot(), "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(out))
			return nil
		},
	}
}
