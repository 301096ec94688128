package predict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryKnownModels(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"lstm", "prophet", "arima", "xgboost"} {
		m, err := r.Get(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, m.Name())
	}
}

func TestRegistryEnsembleAliases(t *testing.T) {
	r := NewRegistry()
	// Legacy ensemble names all resolve to the boosted-tree adapter
	for _, alias := range []string{"randomforest", "random_forest", "gradientboost", "ensemble"} {
		m, err := r.Get(alias)
		require.NoError(t, err, alias)
		assert.Equal(t, "xgboost", m.Name(), alias)
	}
}

func TestRegistryUnknownModel(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("oracle")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestRegistryGetReturnsFreshInstances(t *testing.T) {
	r := NewRegistry()
	a, err := r.Get("arima")
	require.NoError(t, err)
	b, err := r.Get("arima")
	require.NoError(t, err)
	assert.NotSame(t, a, b, "adapters must not share state across requests")
}

func TestRegistryNamesSorted(t *testing.T) {
	names := NewRegistry().Names()
	require.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
	assert.Contains(t, names, "lstm")
	assert.Contains(t, names, "xgboost")
}
