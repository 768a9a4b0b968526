// File: internal/uiauto/engine.go
// Package uiauto resolves UI interactions against accessibility elements.
// The engine walks a fixed ladder of interaction strategies until one
// succeeds; the concrete element tree behind the interfaces is the OS
// accessibility layer or, in tests and simulate mode, an in-memory fake.
package uiauto

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
	"go.uber.org/zap"
)

// ErrUnresolvedInteraction reports that no strategy could activate the
// element.
var ErrUnresolvedInteraction = errors.New("uiauto: no interaction strategy succeeded")

// ErrElementDisabled reports a click attempt on a disabled element.
var ErrElementDisabled = errors.New("uiauto: element is disabled")

// ErrElementNotFound reports a selector that matched nothing.
var ErrElementNotFound = errors.New("uiauto: element not found")

// strategyOrder is the fixed ladder. Order matters and is part of the
// engine's contract; focus-tap is not in the ladder, it is the gated
// fallback.
var strategyOrder = []schemas.InteractionMethod{
	schemas.MethodInvoke,
	schemas.MethodToggle,
	schemas.MethodSelection,
	schemas.MethodMSAA,
	schemas.MethodBMClick,
}

// Element is one node of the accessibility tree.
type Element interface {
	// ID identifies the element for logs and errors.
	ID() string
	// Enabled reports whether the element accepts interaction at all.
	Enabled() bool
	// Supports reports whether the element exposes the given strategy.
	Supports(method schemas.InteractionMethod) bool
	// Perform executes the strategy. An error means "try the next one".
	Perform(method schemas.InteractionMethod) error
	// Text returns the element's readable text content.
	Text() string
}

// Surface is a window's element tree.
type Surface interface {
	// Find resolves a selector to an element. Missing elements return
	// ErrElementNotFound.
	Find(ctx context.Context, selector string) (Element, error)
	// Exists reports whether the selector currently resolves.
	Exists(ctx context.Context, selector string) (bool, error)
}

// Keyboard injects keystrokes into the focused window.
type Keyboard interface {
	TypeText(ctx context.Context, text string) error
	PressKey(ctx context.Context, key string) error
	PressHotkey(ctx context.Context, combo string) error
}

// UnresolvedError carries the element identity and the strategies that were
// attempted before the engine gave up. It unwraps to
// ErrUnresolvedInteraction.
type UnresolvedError struct {
	ElementID string
	Attempted []schemas.InteractionMethod
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("uiauto: element %q resisted all strategies %v", e.ElementID, e.Attempted)
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolvedInteraction }

// Engine resolves clicks through the strategy ladder.
type Engine struct {
	logger        *zap.Logger
	allowFocusTap bool
}

// NewEngine builds an engine. allowFocusTap gates the last-resort
// focus-then-keystroke fallback; it stays off unless the operator opted in.
func NewEngine(logger *zap.Logger, allowFocusTap bool) *Engine {
	return &Engine{
		logger:        logger.Named("UIEngine"),
		allowFocusTap: allowFocusTap,
	}
}

// Click activates the element and returns the strategy that worked.
// Strategies are attempted in ladder order, one attempt each. A disabled
// element fails immediately without touching the ladder.
func (e *Engine) Click(ctx context.Context, el Element) (schemas.InteractionMethod, error) {
	if !el.Enabled() {
		return "", fmt.Errorf("element %q: %w", el.ID(), ErrElementDisabled)
	}

	var attempted []schemas.InteractionMethod
	for _, method := range strategyOrder {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !el.Supports(method) {
			continue
		}
		attempted = append(attempted, method)
		if err := el.Perform(method); err != nil {
			e.logger.Debug("Interaction strategy failed, advancing.",
				zap.String("element", el.ID()),
				zap.String("strategy", string(method)),
				zap.Error(err))
			continue
		}
		e.logger.Debug("Interaction resolved.",
			zap.String("element", el.ID()),
			zap.String("strategy", string(method)))
		return method, nil
	}

	if e.allowFocusTap && el.Supports(schemas.MethodFocusTap) {
		attempted = append(attempted, schemas.MethodFocusTap)
		if err := el.Perform(schemas.MethodFocusTap); err == nil {
			e.logger.Warn("Interaction resolved via focus tap fallback.",
				zap.String("element", el.ID()))
			return schemas.MethodFocusTap, nil
		}
	}

	return "", &UnresolvedError{ElementID: el.ID(), Attempted: attempted}
}
