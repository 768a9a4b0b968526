// File: internal/recipe/clipboard.go
package recipe

import (
	"sync"

	"github.com/atotto/clipboard"
)

// SystemClipboard is the host clipboard.
type SystemClipboard struct{}

var _ Clipboard = SystemClipboard{}

func (SystemClipboard) ReadAll() (string, error) { return clipboard.ReadAll() }

func (SystemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// MemClipboard is the in-memory clipboard used by tests and simulate mode.
type MemClipboard struct {
	mu      sync.Mutex
	content string
}

var _ Clipboard = (*MemClipboard)(nil)

func (c *MemClipboard) ReadAll() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content, nil
}

func (c *MemClipboard) WriteAll(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content = text
	return nil
}
