// File: internal/uiauto/sim.go
package uiauto

import (
	"context"
	"fmt"
	"sync"

	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
)

// SimElement is a scriptable in-memory element. Tests and simulate mode
// configure which strategies it exposes and which of those succeed.
type SimElement struct {
	mu sync.Mutex

	Name      string
	IsEnabled bool
	Content   string
	// Exposes lists the strategies the element advertises.
	Exposes []schemas.InteractionMethod
	// Succeeds lists the strategies that actually work; an exposed strategy
	// not in this list fails when performed.
	Succeeds []schemas.InteractionMethod

	// Performed records every attempt, in order.
	Performed []schemas.InteractionMethod
	// Activations counts successful performs.
	Activations int
}

var _ Element = (*SimElement)(nil)

func (el *SimElement) ID() string { return el.Name }

func (el *SimElement) Enabled() bool { return el.IsEnabled }

func (el *SimElement) Text() string { return el.Content }

func (el *SimElement) Supports(method schemas.InteractionMethod) bool {
	for _, m := range el.Exposes {
		if m == method {
			return true
		}
	}
	return false
}

func (el *SimElement) Perform(method schemas.InteractionMethod) error {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.Performed = append(el.Performed, method)
	for _, m := range el.Succeeds {
		if m == method {
			el.Activations++
			return nil
		}
	}
	return fmt.Errorf("strategy %s rejected by element %q", method, el.Name)
}

// SimSurface is an in-memory element tree keyed by selector.
type SimSurface struct {
	mu       sync.Mutex
	elements map[string]*SimElement
}

var _ Surface = (*SimSurface)(nil)

// NewSimSurface returns an empty surface.
func NewSimSurface() *SimSurface {
	return &SimSurface{elements: map[string]*SimElement{}}
}

// Add registers an element under a selector.
func (s *SimSurface) Add(selector string, el *SimElement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements[selector] = el
}

// Remove drops a selector, simulating an element leaving the tree.
func (s *SimSurface) Remove(selector string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.elements, selector)
}

func (s *SimSurface) Find(ctx context.Context, selector string) (Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.elements[selector]
	if !ok {
		return nil, fmt.Errorf("selector %q: %w", selector, ErrElementNotFound)
	}
	return el, nil
}

func (s *SimSurface) Exists(ctx context.Context, selector string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.elements[selector]
	return ok, nil
}

// SimKeyboard records injected keystrokes.
type SimKeyboard struct {
	mu      sync.Mutex
	Typed   []string
	Keys    []string
	Hotkeys []string
}

var _ Keyboard = (*SimKeyboard)(nil)

func (k *SimKeyboard) TypeText(ctx context.Context, text string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Typed = append(k.Typed, text)
	return nil
}

func (k *SimKeyboard) PressKey(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Keys = append(k.Keys, key)
	return nil
}

func (k *SimKeyboard) PressHotkey(ctx context.Context, combo string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Hotkeys = append(k.Hotkeys, combo)
	return nil
}
