// File: internal/uiauto/engine_test.go
package uiauto

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
	"go.uber.org/zap/zaptest"
)

func TestEngineClick(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("first working strategy wins", func(t *testing.T) {
		t.Parallel()
		el := &SimElement{
			Name:      "btn-export",
			IsEnabled: true,
			Exposes:   []schemas.InteractionMethod{schemas.MethodInvoke, schemas.MethodBMClick},
			Succeeds:  []schemas.InteractionMethod{schemas.MethodInvoke},
		}
		engine := NewEngine(zaptest.NewLogger(t), false)

		method, err := engine.Click(ctx, el)
		require.NoError(t, err)
		assert.Equal(t, schemas.MethodInvoke, method)
		assert.Equal(t, []schemas.InteractionMethod{schemas.MethodInvoke}, el.Performed)
	})

	t.Run("failed strategy advances without retry", func(t *testing.T) {
		t.Parallel()
		el := &SimElement{
			Name:      "btn-flaky",
			IsEnabled: true,
			Exposes: []schemas.InteractionMethod{
				schemas.MethodInvoke, schemas.MethodToggle, schemas.MethodBMClick,
			},
			Succeeds: []schemas.InteractionMethod{schemas.MethodBMClick},
		}
		engine := NewEngine(zaptest.NewLogger(t), false)

		method, err := engine.Click(ctx, el)
		require.NoError(t, err)
		assert.Equal(t, schemas.MethodBMClick, method)
		// Each strategy exactly once, in ladder order.
		assert.Equal(t, []schemas.InteractionMethod{
			schemas.MethodInvoke, schemas.MethodToggle, schemas.MethodBMClick,
		}, el.Performed)
	})

	t.Run("disabled element fails immediately", func(t *testing.T) {
		t.Parallel()
		el := &SimElement{
			Name:     "btn-grey",
			Exposes:  []schemas.InteractionMethod{schemas.MethodInvoke},
			Succeeds: []schemas.InteractionMethod{schemas.MethodInvoke},
		}
		engine := NewEngine(zaptest.NewLogger(t), false)

		_, err := engine.Click(ctx, el)
		require.ErrorIs(t, err, ErrElementDisabled)
		assert.Empty(t, el.Performed, "no strategies may run against a disabled element")
	})

	t.Run("focus tap stays off by default", func(t *testing.T) {
		t.Parallel()
		el := &SimElement{
			Name:      "btn-stubborn",
			IsEnabled: true,
			Exposes:   []schemas.InteractionMethod{schemas.MethodInvoke, schemas.MethodFocusTap},
			Succeeds:  []schemas.InteractionMethod{schemas.MethodFocusTap},
		}
		engine := NewEngine(zaptest.NewLogger(t), false)

		_, err := engine.Click(ctx, el)
		require.ErrorIs(t, err, ErrUnresolvedInteraction)

		var unresolved *UnresolvedError
		require.True(t, errors.As(err, &unresolved))
		assert.Equal(t, "btn-stubborn", unresolved.ElementID)
		assert.Equal(t, []schemas.InteractionMethod{schemas.MethodInvoke}, unresolved.Attempted)
	})

	t.Run("focus tap fires only when enabled", func(t *testing.T) {
		t.Parallel()
		el := &SimElement{
			Name:      "btn-stubborn",
			IsEnabled: true,
			Exposes:   []schemas.InteractionMethod{schemas.MethodInvoke, schemas.MethodFocusTap},
			Succeeds:  []schemas.InteractionMethod{schemas.MethodFocusTap},
		}
		engine := NewEngine(zaptest.NewLogger(t), true)

		method, err := engine.Click(ctx, el)
		require.NoError(t, err)
		assert.Equal(t, schemas.MethodFocusTap, method)
	})

	t.Run("exhausted ladder reports attempted strategies", func(t *testing.T) {
		t.Parallel()
		el := &SimElement{
			Name:      "btn-dead",
			IsEnabled: true,
			Exposes: []schemas.InteractionMethod{
				schemas.MethodInvoke, schemas.MethodMSAA,
			},
		}
		engine := NewEngine(zaptest.NewLogger(t), false)

		_, err := engine.Click(ctx, el)
		var unresolved *UnresolvedError
		require.True(t, errors.As(err, &unresolved))
		assert.Equal(t, []schemas.InteractionMethod{
			schemas.MethodInvoke, schemas.MethodMSAA,
		}, unresolved.Attempted)
	})
}

func TestSimSurface(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	surface := NewSimSurface()
	surface.Add("name=Save", &SimElement{Name: "Save", IsEnabled: true, Content: "Save"})

	el, err := surface.Find(ctx, "name=Save")
	require.NoError(t, err)
	assert.Equal(t, "Save", el.Text())

	ok, err := surface.Exists(ctx, "name=Missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = surface.Find(ctx, "name=Missing")
	assert.ErrorIs(t, err, ErrElementNotFound)
}
