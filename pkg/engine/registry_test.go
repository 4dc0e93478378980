package engine_test

import (
	"context"
	"testing"

	"github.com/pseudomuto/gatekeeper/pkg/engine"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	noop := func(context.Context, engine.Queryer) error { return nil }

	reg := engine.NewRegistry()
	require.NoError(t, reg.Register(&engine.GoMigration{Name: "V1__everywhere", Up: noop}))
	require.NoError(t, reg.Register(&engine.GoMigration{Database: "reporting", Name: "V2__reporting_only", Up: noop}))
	require.NoError(t, reg.Register(&engine.GoMigration{Database: "cache", Name: "V2__reporting_only", Up: noop}))

	t.Run("Has", func(t *testing.T) {
		require.True(t, reg.Has("V1__everywhere"))
		require.True(t, reg.Has("V2__reporting_only"))
		require.False(t, reg.Has("V3__nope"))
	})

	t.Run("For", func(t *testing.T) {
		require.Len(t, reg.For("default"), 1)
		require.Len(t, reg.For("reporting"), 2)
		require.Len(t, reg.For("cache"), 2)
	})

	t.Run("errors", func(t *testing.T) {
		require.ErrorContains(t, reg.Register(&engine.GoMigration{Up: noop}), "must have a name")
		require.ErrorContains(t, reg.Register(&engine.GoMigration{Name: "V9__x"}), "has no Up function")
		require.ErrorContains(
			t,
			reg.Register(&engine.GoMigration{Name: "V1__everywhere", Up: noop}),
			"already registered",
		)
		require.ErrorContains(
			t,
			reg.Register(&engine.GoMigration{Database: "reporting", Name: "V2__reporting_only", Up: noop}),
			"already registered",
		)
	})
}

func TestRegister(t *testing.T) {
	noop := func(context.Context, engine.Queryer) error { return nil }

	engine.Register(&engine.GoMigration{Database: "register_test", Name: "V1__registered", Up: noop})
	require.True(t, engine.DefaultRegistry.Has("V1__registered"))
	require.Panics(t, func() {
		engine.Register(&engine.GoMigration{Database: "register_test", Name: "V1__registered", Up: noop})
	})
}
