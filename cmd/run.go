// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot-cli/internal/browser"
	"github.com/xkilldash9x/deskpilot-cli/internal/chat"
	"github.com/xkilldash9x/deskpilot-cli/internal/config"
	"github.com/xkilldash9x/deskpilot-cli/internal/hotkey"
	"github.com/xkilldash9x/deskpilot-cli/internal/intents"
	"github.com/xkilldash9x/deskpilot-cli/internal/nlp"
	"github.com/xkilldash9x/deskpilot-cli/internal/observability"
	"github.com/xkilldash9x/deskpilot-cli/internal/ocr"
	"github.com/xkilldash9x/deskpilot-cli/internal/orchestrator"
	"github.com/xkilldash9x/deskpilot-cli/internal/platform"
	"github.com/xkilldash9x/deskpilot-cli/internal/profiles"
	"github.com/xkilldash9x/deskpilot-cli/internal/recipe"
	"github.com/xkilldash9x/deskpilot-cli/internal/registry"
	"github.com/xkilldash9x/deskpilot-cli/internal/state"
	"github.com/xkilldash9x/deskpilot-cli/internal/uiauto"
)

// newRunCmd creates the `run` command: the full agent with every intake
// worker the feature flags enable.
func newRunCmd() *cobra.Command {
	var (
		simulate      bool
		dryRun        bool
		allowFocusTap bool
		profile       string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the deskpilot agent",
		Long:  "Starts the intent watcher plus any enabled intake workers (chat bridge, OCR scanner) and arms the panic hotkey. Blocks until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := appCfg
			cfg.SetRunConfig(config.RunConfig{
				Simulate:      simulate,
				DryRun:        dryRun,
				AllowFocusTap: allowFocusTap,
				Profile:       profile,
			})

			combo, err := hotkey.ParseCombo(cfg.Safety().PanicHotkey)
			if err != nil {
				return fmt.Errorf("invalid safety.panic_hotkey: %w", err)
			}

			profileMgr, err := profiles.NewManager(cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("Agent starting.",
				zap.String("profile", profileMgr.Active()),
				zap.Bool("simulate", simulate),
				zap.Bool("allow_focus_tap", allowFocusTap))

			store := state.NewStore(cfg.State(), logger)

			var (
				host      platform.Host
				surfaces  recipe.SurfaceProvider
				keyboard  uiauto.Keyboard
				clipboard recipe.Clipboard
			)
			if simulate {
				host = platform.NewSimulator()
				surfaces = staticSurfaces{surface: uiauto.NewSimSurface()}
				keyboard = &uiauto.SimKeyboard{}
				clipboard = &recipe.MemClipboard{}
			} else {
				// Until a desktop window backend lands, the real host can
				// launch and reap processes but has no window surface.
				host = platform.NewHeadlessHost(logger)
				clipboard = recipe.SystemClipboard{}
			}

			reg := registry.New(cfg.Apps(), host, store, logger)
			engine := uiauto.NewEngine(logger, cfg.Run().AllowFocusTap)
			browserDrv := browser.NewDriver(cfg, logger)
			runner := recipe.NewRunner(recipe.Deps{
				Registry:  reg,
				Store:     store,
				Engine:    engine,
				Surfaces:  surfaces,
				Keyboard:  keyboard,
				Clipboard: clipboard,
				Browser:   browserDrv,
				Logger:    logger,
			})
			watcher := intents.NewWatcher(cfg, runner, logger)

			var router *nlp.Router
			if manifestPath := cfg.Intents().Manifest; manifestPath != "" {
				manifest, err := nlp.LoadManifest(manifestPath)
				if err != nil {
					logger.Warn("Intent manifest unreadable; natural-language routing disabled.",
						zap.String("path", manifestPath), zap.Error(err))
				} else {
					router = nlp.NewRouter(manifest)
				}
			}
			bridge := chat.NewBridge(cfg, router, logger)

			opts := orchestrator.Options{
				Watcher: watcher,
				// The OS message-loop listener is platform work; the
				// channel-driven listener keeps the combo armed meanwhile.
				Hotkeys:    hotkey.NewSimListener(),
				PanicCombo: combo,
			}
			if cfg.Features().ChatBridge {
				opts.Chat = &orchestrator.InteractiveChat{
					Bridge: bridge,
					In:     cmd.InOrStdin(),
					Out:    cmd.OutOrStdout(),
				}
			}
			if cfg.Features().OCRIntents {
				logger.Warn("OCR intents enabled without a capture backend; scanner will idle.")
				opts.Scanner = ocr.NewScanner(cfg, blankScreen{}, bridge, logger)
			}

			orch, err := orchestrator.New(opts, logger)
			if err != nil {
				return err
			}

			if dryRun {
				logger.Info("Dry run complete; wiring validated.",
					zap.Strings("recipe_steps", runner.HandlerNames()),
					zap.Int("configured_apps", len(cfg.Apps())),
					zap.Int("mapped_intents", len(cfg.Intents().Map)))
				return nil
			}

			defer func() {
				if err := browserDrv.Close(); err != nil {
					logger.Warn("Browser close failed.", zap.Error(err))
				}
				observability.Sync()
			}()
			return orch.Run(ctx)
		},
	}

	runCmd.Flags().BoolVar(&simulate, "simulate", false, "use the in-memory desktop simulator instead of the real host")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate configuration and wiring, then exit")
	runCmd.Flags().BoolVar(&allowFocusTap, "allow-focus-tap", false, "permit the focus-tap interaction fallback")
	runCmd.Flags().StringVar(&profile, "profile", "", "safety profile to activate (default from config)")
	return runCmd
}

// staticSurfaces serves one shared surface for every app and target.
type staticSurfaces struct {
	surface uiauto.Surface
}

func (s staticSurfaces) SurfaceFor(ctx context.Context, app, target string) (uiauto.Surface, error) {
	if s.surface == nil {
		return nil, errors.New("no ui surface available")
	}
	return s.surface, nil
}

// blankScreen is the placeholder capture source used when OCR intents are
// enabled but no OCR backend is wired.
type blankScreen struct{}

func (blankScreen) CaptureText(ctx context.Context) (string, error) { return "", nil }
