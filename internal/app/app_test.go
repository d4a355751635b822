package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/app"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/config"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/rawstore"
	storeMemory "github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/store/memory"
)

func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNew_DefaultsToInMemoryBackends(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), defaultConfig(t))
	require.NoError(t, err)
	defer a.Close()

	require.IsType(t, &storeMemory.Store{}, a.Store)
	require.IsType(t, rawstore.Noop{}, a.Archiver)
	require.NotNil(t, a.Collector)
	require.NotNil(t, a.BulkRunner)
	require.NotNil(t, a.Chain)
	require.NotNil(t, a.Loader)
}

func TestNew_LocalRawStore(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.RawStore.Kind = "local"
	cfg.RawStore.Dir = t.TempDir()

	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	require.IsType(t, &rawstore.Local{}, a.Archiver)
}

func TestAPIServerServesHealth(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), defaultConfig(t))
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.APIServer().Handler())
}
