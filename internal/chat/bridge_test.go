// File: internal/chat/bridge_test.go
package chat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/deskpilot-cli/internal/config"
	"github.com/xkilldash9x/deskpilot-cli/internal/nlp"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"
)

func newBridgeFixture(t *testing.T, router *nlp.Router) (*Bridge, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.IntentsCfg = config.IntentsConfig{
		Directory:        dir,
		ArchiveDirectory: filepath.Join(dir, "archive"),
		Map: map[string]config.IntentMapping{
			"export_quotes": {Recipe: "export_quotes.yml"},
			"open_terminal": {Recipe: "open_terminal.yml"},
		},
	}
	bridge := NewBridge(cfg, router, zaptest.NewLogger(t))
	return bridge, dir
}

func readIntentFile(t *testing.T, path string) map[string]any {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	return doc
}

func TestProcessTranscript(t *testing.T) {
	t.Run("mapped macro command becomes an intent file", func(t *testing.T) {
		bridge, dir := newBridgeFixture(t, nil)

		n := bridge.ProcessTranscript("agent please [macro:export_quotes symbol=AAPL qty=10] thanks")
		assert.Equal(t, 1, n)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		var files []string
		for _, e := range entries {
			if !e.IsDir() {
				files = append(files, e.Name())
			}
		}
		require.Len(t, files, 1)
		assert.Regexp(t, `^\d{14}_export_quotes_\d{3}\.yml$`, files[0])

		doc := readIntentFile(t, filepath.Join(dir, files[0]))
		assert.Equal(t, "export_quotes", doc["intent"])
		args := doc["args"].(map[string]any)
		assert.Equal(t, "AAPL", args["symbol"])
		assert.Equal(t, "10", args["qty"])
	})

	t.Run("unmapped commands are dropped", func(t *testing.T) {
		bridge, dir := newBridgeFixture(t, nil)
		n := bridge.ProcessTranscript("[macro:make_coffee strength=max]")
		assert.Equal(t, 0, n)
		entries, _ := os.ReadDir(dir)
		assert.Empty(t, entries)
	})

	t.Run("agent commands never emit files from transcripts", func(t *testing.T) {
		bridge, dir := newBridgeFixture(t, nil)
		n := bridge.ProcessTranscript("[agent:list_intents]")
		assert.Equal(t, 0, n)
		entries, _ := os.ReadDir(dir)
		assert.Empty(t, entries)
	})

	t.Run("sequence suffix separates same-second emissions", func(t *testing.T) {
		bridge, dir := newBridgeFixture(t, nil)
		fixed := time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)
		bridge.now = func() time.Time { return fixed }

		n := bridge.ProcessTranscript("[macro:export_quotes a=1] [macro:export_quotes a=2]")
		assert.Equal(t, 2, n)

		assert.FileExists(t, filepath.Join(dir, "20260828103000_export_quotes_000.yml"))
		assert.FileExists(t, filepath.Join(dir, "20260828103000_export_quotes_001.yml"))
	})
}

func TestHandleLine(t *testing.T) {
	t.Run("list_intents renders the mapping", func(t *testing.T) {
		bridge, _ := newBridgeFixture(t, nil)
		reply := bridge.HandleLine("[agent:list_intents]")
		assert.Contains(t, reply, "export_quotes -> export_quotes.yml")
		assert.Contains(t, reply, "open_terminal -> open_terminal.yml")
	})

	t.Run("queued reply names the file", func(t *testing.T) {
		bridge, _ := newBridgeFixture(t, nil)
		reply := bridge.HandleLine("[macro:open_terminal]")
		assert.True(t, strings.HasPrefix(reply, "queued open_terminal -> "), reply)
	})

	t.Run("nl fallback suggests without queuing", func(t *testing.T) {
		router := nlp.NewRouter(nlp.Manifest{Intents: []nlp.IntentInfo{
			{Name: "export_quotes", Synonyms: []string{"export", "quotes"}},
		}})
		bridge, dir := newBridgeFixture(t, router)

		reply := bridge.HandleLine("please export the quotes for AAPL")
		assert.Contains(t, reply, "did you mean")
		assert.Contains(t, reply, "[macro:export_quotes")

		entries, _ := os.ReadDir(dir)
		assert.Empty(t, entries, "suggestions must never write intent files")
	})

	t.Run("no router means no suggestion", func(t *testing.T) {
		bridge, _ := newBridgeFixture(t, nil)
		assert.Empty(t, bridge.HandleLine("just chatting"))
	})
}

func TestRunInteractive(t *testing.T) {
	bridge, _ := newBridgeFixture(t, nil)
	in := strings.NewReader("[agent:list_intents]\nexit\n")
	var out strings.Builder

	require.NoError(t, bridge.RunInteractive(in, &out))
	assert.Contains(t, out.String(), "configured intents:")
}
