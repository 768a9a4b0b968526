// File: internal/chat/parser_test.go
package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommands(t *testing.T) {
	t.Parallel()

	t.Run("single macro with args", func(t *testing.T) {
		t.Parallel()
		cmds := ParseCommands("please run [macro:export_quotes symbol=AAPL qty=10] now")
		require.Len(t, cmds, 1)
		assert.Equal(t, "macro", cmds[0].Prefix)
		assert.Equal(t, "export_quotes", cmds[0].Name)
		assert.Equal(t, map[string]string{"symbol": "AAPL", "qty": "10"}, cmds[0].Args)
	})

	t.Run("quoted values keep spaces, quotes stripped", func(t *testing.T) {
		t.Parallel()
		cmds := ParseCommands(`[macro:open_doc path="C:\docs\q3 report.xlsx" mode='read only']`)
		require.Len(t, cmds, 1)
		assert.Equal(t, `C:\docs\q3 report.xlsx`, cmds[0].Args["path"])
		assert.Equal(t, "read only", cmds[0].Args["mode"])
	})

	t.Run("names and keys are lowercased", func(t *testing.T) {
		t.Parallel()
		cmds := ParseCommands("[Macro:Export_Quotes Symbol=AAPL]")
		// Prefix matching is case-sensitive per the grammar; "Macro" is not
		// a command.
		assert.Empty(t, cmds)

		cmds = ParseCommands("[macro:Export_Quotes Symbol=AAPL]")
		require.Len(t, cmds, 1)
		assert.Equal(t, "export_quotes", cmds[0].Name)
		assert.Equal(t, map[string]string{"symbol": "AAPL"}, cmds[0].Args)
	})

	t.Run("agent prefix and whitespace after prefix", func(t *testing.T) {
		t.Parallel()
		cmds := ParseCommands("[agent :list_intents]")
		require.Len(t, cmds, 1)
		assert.Equal(t, "agent", cmds[0].Prefix)
		assert.Equal(t, "list_intents", cmds[0].Name)
		assert.Empty(t, cmds[0].Args)
	})

	t.Run("multiple commands in one text, in order", func(t *testing.T) {
		t.Parallel()
		cmds := ParseCommands("[macro:a x=1] filler [macro:b] [agent:list_intents]")
		require.Len(t, cmds, 3)
		assert.Equal(t, "a", cmds[0].Name)
		assert.Equal(t, "b", cmds[1].Name)
		assert.Equal(t, "list_intents", cmds[2].Name)
	})

	t.Run("plain text yields nothing", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, ParseCommands("no commands here, [not:one] either"))
	})
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a := Command{Name: "export", Args: map[string]string{"b": "2", "a": "1"}}
	b := Command{Name: "export", Args: map[string]string{"a": "1", "b": "2"}}
	c := Command{Name: "export", Args: map[string]string{"a": "1"}}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "arg order must not matter")
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
