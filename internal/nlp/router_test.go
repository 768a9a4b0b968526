// File: internal/nlp/router_test.go
package nlp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter() *Router {
	return NewRouter(Manifest{Intents: []IntentInfo{
		{Name: "export_quotes", Description: "Export quotes to CSV", Synonyms: []string{"export", "quotes", "csv"}},
		{Name: "open_terminal", Description: "Start the trading terminal", Synonyms: []string{"terminal", "trading app"}},
	}})
}

func TestRoute(t *testing.T) {
	t.Parallel()

	t.Run("name mention scores highest", func(t *testing.T) {
		t.Parallel()
		p, ok := testRouter().Route("run export quotes please")
		require.True(t, ok)
		assert.Equal(t, "export_quotes", p.Intent)
		assert.GreaterOrEqual(t, p.Score, 3)
	})

	t.Run("synonyms accumulate", func(t *testing.T) {
		t.Parallel()
		p, ok := testRouter().Route("dump the csv with the export thing")
		require.True(t, ok)
		assert.Equal(t, "export_quotes", p.Intent)
	})

	t.Run("single weak synonym clears the floor", func(t *testing.T) {
		t.Parallel()
		p, ok := testRouter().Route("open the terminal")
		require.True(t, ok)
		assert.Equal(t, "open_terminal", p.Intent)
		assert.Equal(t, 2, p.Score)
	})

	t.Run("no match below the minimum score", func(t *testing.T) {
		t.Parallel()
		_, ok := testRouter().Route("what's the weather like")
		assert.False(t, ok)
	})

	t.Run("key value args are extracted", func(t *testing.T) {
		t.Parallel()
		p, ok := testRouter().Route("export quotes symbol=AAPL qty: 10")
		require.True(t, ok)
		assert.Equal(t, "aapl", p.Args["symbol"])
		assert.Equal(t, "10", p.Args["qty"])
	})

	t.Run("topic fallback when no pairs present", func(t *testing.T) {
		t.Parallel()
		p, ok := testRouter().Route("export the quotes for MSFT")
		require.True(t, ok)
		assert.Equal(t, "msft", p.Args["topic"])
	})
}

func TestLoadManifest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "intents.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
intents:
  - name: export_quotes
    description: Export quotes to CSV
    synonyms: [export, quotes]
`), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, m.Intents, 1)
	assert.Equal(t, "export_quotes", m.Intents[0].Name)
	assert.Equal(t, []string{"export", "quotes"}, m.Intents[0].Synonyms)

	_, err = LoadManifest(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
