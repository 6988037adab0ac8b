package internal_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ryanmoran/gitserve/internal"
)

func TestCleanupManager(t *testing.T) {
	t.Run("executes in LIFO order", func(t *testing.T) {
		m := internal.NewCleanupManager(zap.NewNop())
		var order []string

		for _, name := range []string{"first", "second", "third"} {
			m.Add(name, func() error {
				order = append(order, name)
				return nil
			})
		}

		m.Execute()
		require.Equal(t, []string{"third", "second", "first"}, order)
	})

	t.Run("continues on error and logs the failure", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		m := internal.NewCleanupManager(zap.New(core))
		var executed []string

		m.Add("first", func() error {
			executed = append(executed, "first")
			return nil
		})
		m.Add("second", func() error {
			executed = append(executed, "second")
			return errors.New("second failed")
		})
		m.Add("third", func() error {
			executed = append(executed, "third")
			return nil
		})

		m.Execute()
		require.Equal(t, []string{"third", "second", "first"}, executed)

		entries := logs.All()
		require.Len(t, entries, 1)
		require.Equal(t, "cleanup failed", entries[0].Message)
		require.Equal(t, "second", entries[0].ContextMap()["resource"])
		require.Equal(t, "second failed", entries[0].ContextMap()["error"])
	})

	t.Run("runs each function once", func(t *testing.T) {
		m := internal.NewCleanupManager(zap.NewNop())
		count := 0
		m.Add("counter", func() error {
			count++
			return nil
		})

		m.Execute()
		m.Execute()
		require.Equal(t, 1, count)
	})

	t.Run("with no functions", func(t *testing.T) {
		internal.NewCleanupManager(zap.NewNop()).Execute()
	})
}
