// File: internal/hotkey/hotkey.go
// Package hotkey parses global hotkey combos and defines the listener
// contract. The OS message-loop listener is an external collaborator; the
// channel-driven simulator here backs tests and simulate mode.
package hotkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

var (
	// ErrEmptyCombo reports a combo with no keys at all.
	ErrEmptyCombo = errors.New("hotkey: empty combo")
	// ErrNoKey reports a combo with modifiers only.
	ErrNoKey = errors.New("hotkey: combo has no non-modifier key")
	// ErrMultipleKeys reports a combo with more than one non-modifier key.
	ErrMultipleKeys = errors.New("hotkey: combo has more than one non-modifier key")
	// ErrUnknownKey reports an unrecognized key token.
	ErrUnknownKey = errors.New("hotkey: unknown key")
)

// Combo is one parsed hotkey chord.
type Combo struct {
	Ctrl  bool
	Alt   bool
	Shift bool
	Win   bool
	Key   string
}

// modifierAliases normalizes modifier spellings.
var modifierAliases = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"ctl":     "ctrl",
	"alt":     "alt",
	"option":  "alt",
	"shift":   "shift",
	"win":     "win",
	"super":   "win",
	"meta":    "win",
	"cmd":     "win",
}

// keyAliases normalizes non-modifier key spellings.
var keyAliases = map[string]string{
	"esc":      "escape",
	"return":   "enter",
	"del":      "delete",
	"ins":      "insert",
	"pgup":     "pageup",
	"pgdn":     "pagedown",
	"spacebar": "space",
}

// namedKeys is the set of accepted non-alphanumeric keys.
var namedKeys = map[string]struct{}{
	"escape": {}, "enter": {}, "tab": {}, "space": {}, "backspace": {},
	"delete": {}, "insert": {}, "home": {}, "end": {}, "pageup": {},
	"pagedown": {}, "up": {}, "down": {}, "left": {}, "right": {},
	"printscreen": {}, "pause": {},
}

// ParseCombo parses a "+"-separated chord such as "ctrl+alt+shift+p".
// Any number of modifiers, exactly one non-modifier key.
func ParseCombo(s string) (Combo, error) {
	var combo Combo
	tokens := strings.Split(s, "+")
	keyCount := 0
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		if mod, ok := modifierAliases[tok]; ok {
			switch mod {
			case "ctrl":
				combo.Ctrl = true
			case "alt":
				combo.Alt = true
			case "shift":
				combo.Shift = true
			case "win":
				combo.Win = true
			}
			continue
		}
		key, err := normalizeKey(tok)
		if err != nil {
			return Combo{}, err
		}
		keyCount++
		if keyCount > 1 {
			return Combo{}, fmt.Errorf("%w: %q", ErrMultipleKeys, s)
		}
		combo.Key = key
	}
	if keyCount == 0 {
		if !combo.Ctrl && !combo.Alt && !combo.Shift && !combo.Win {
			return Combo{}, fmt.Errorf("%w: %q", ErrEmptyCombo, s)
		}
		return Combo{}, fmt.Errorf("%w: %q", ErrNoKey, s)
	}
	return combo, nil
}

func normalizeKey(tok string) (string, error) {
	if alias, ok := keyAliases[tok]; ok {
		tok = alias
	}
	if len(tok) == 1 {
		r := rune(tok[0])
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return tok, nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, tok)
	}
	if strings.HasPrefix(tok, "f") {
		if n, err := strconv.Atoi(tok[1:]); err == nil {
			if n >= 1 && n <= 24 {
				return tok, nil
			}
			return "", fmt.Errorf("%w: %q", ErrUnknownKey, tok)
		}
	}
	if _, ok := namedKeys[tok]; ok {
		return tok, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKey, tok)
}

// String renders the canonical form: modifiers in fixed order, then the key.
func (c Combo) String() string {
	var parts []string
	if c.Ctrl {
		parts = append(parts, "ctrl")
	}
	if c.Alt {
		parts = append(parts, "alt")
	}
	if c.Shift {
		parts = append(parts, "shift")
	}
	if c.Win {
		parts = append(parts, "win")
	}
	parts = append(parts, c.Key)
	return strings.Join(parts, "+")
}

// Listener watches for one global hotkey and invokes the fire callback on
// each press.
type Listener interface {
	// Start arms the listener. The callback may be invoked from the
	// listener's own goroutine.
	Start(combo Combo, fire func()) error
	// Stop disarms the listener. Safe to call more than once.
	Stop() error
}

// SimListener is the channel-driven listener used by tests and simulate
// mode. Press delivers chords; matching chords invoke the callback.
type SimListener struct {
	mu      sync.Mutex
	armed   bool
	combo   Combo
	fire    func()
	presses chan Combo
	done    chan struct{}
}

var _ Listener = (*SimListener)(nil)

// NewSimListener returns an unarmed simulator.
func NewSimListener() *SimListener {
	return &SimListener{}
}

func (l *SimListener) Start(combo Combo, fire func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.armed {
		return errors.New("hotkey: listener already started")
	}
	l.armed = true
	l.combo = combo
	l.fire = fire
	l.presses = make(chan Combo, 16)
	l.done = make(chan struct{})
	go l.loop(l.presses, l.done)
	return nil
}

func (l *SimListener) loop(presses <-chan Combo, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case pressed := <-presses:
			l.mu.Lock()
			match := l.armed && pressed == l.combo
			fire := l.fire
			l.mu.Unlock()
			if match && fire != nil {
				fire()
			}
		}
	}
}

func (l *SimListener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.armed {
		return nil
	}
	l.armed = false
	close(l.done)
	return nil
}

// Press injects one chord. Unarmed listeners ignore presses.
func (l *SimListener) Press(combo Combo) {
	l.mu.Lock()
	armed := l.armed
	presses := l.presses
	l.mu.Unlock()
	if armed {
		presses <- combo
	}
}
