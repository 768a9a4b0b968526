// File: cmd/intents.go
package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/deskpilot-cli/internal/chat"
	"github.com/xkilldash9x/deskpilot-cli/internal/nlp"
	"github.com/xkilldash9x/deskpilot-cli/internal/observability"
)

// newIntentsCmd creates the `intents` command group.
func newIntentsCmd() *cobra.Command {
	intentsCmd := &cobra.Command{
		Use:   "intents",
		Short: "Inspect and emit intents",
	}
	intentsCmd.AddCommand(newIntentsListCmd(), newIntentsEmitCmd())
	return intentsCmd
}

type intentRow struct {
	Name        string   `json:"name"`
	Recipe      string   `json:"recipe"`
	Description string   `json:"description,omitempty"`
	Synonyms    []string `json:"synonyms,omitempty"`
}

func newIntentsListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Lists the mapped intents",
		RunE: func(cmd *cobra.Command, args []string) error {
			intentsCfg := appCfg.Intents()

			// Manifest metadata enriches the listing when present.
			meta := map[string]nlp.IntentInfo{}
			if intentsCfg.Manifest != "" {
				if manifest, err := nlp.LoadManifest(intentsCfg.Manifest); err == nil {
					for _, info := range manifest.Intents {
						meta[info.Name] = info
					}
				}
			}

			names := make([]string, 0, len(intentsCfg.Map))
			for name := range intentsCfg.Map {
				names = append(names, name)
			}
			sort.Strings(names)

			rows := make([]intentRow, 0, len(names))
			for _, name := range names {
				row := intentRow{Name: name, Recipe: intentsCfg.Map[name].Recipe}
				if info, ok := meta[name]; ok {
					row.Description = info.Description
					row.Synonyms = info.Synonyms
				}
				rows = append(rows, row)
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
				line := fmt.Sprintf("%-24s -> %s", row.Name, row.Recipe)
				if row.Description != "" {
					line += "  (" + row.Description + ")"
				}
				cmd.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func newIntentsEmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emit <intent> [key=value...]",
		Short: "Writes an intent file into the watched directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent := args[0]
			if _, mapped := appCfg.Intents().Map[intent]; !mapped {
				return fmt.Errorf("intent %q is not mapped to a recipe", intent)
			}
			fileArgs := map[string]string{}
			for _, pair := range args[1:] {
				key, value, found := strings.Cut(pair, "=")
				if !found || key == "" {
					return fmt.Errorf("argument %q is not key=value", pair)
				}
				fileArgs[key] = value
			}

			bridge := chat.NewBridge(appCfg, nil, observability.GetLogger())
			path, err := bridge.EmitIntent(intent, fileArgs)
			if err != nil {
				return err
			}
			cmd.Printf("queued %s -> %s\n", intent, path)
			return nil
		},
	}
	return cmd
}
