package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subflow/pkg/config"
)

type testConfig struct {
	Host string `env:"TEST_CONFIG_HOST" envDefault:"localhost"`
	Port int    `env:"TEST_CONFIG_PORT" envDefault:"8080"`
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, 8080, cfg.Port)
	})

	t.Run("reads environment", func(t *testing.T) {
		t.Setenv("OTHER_CONFIG_NAME", "subflow")

		type otherConfig struct {
			Name string `env:"OTHER_CONFIG_NAME,required"`
		}

		var cfg otherConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "subflow", cfg.Name)
	})

	t.Run("returns cached value on second load", func(t *testing.T) {
		var first testConfig
		require.NoError(t, config.Load(&first))

		// Changing the environment after the first load must not change the
		// value other components observe.
		t.Setenv("TEST_CONFIG_HOST", "changed")

		var second testConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, first, second)
	})

	t.Run("nil pointer", func(t *testing.T) {
		err := config.Load[testConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})
}
