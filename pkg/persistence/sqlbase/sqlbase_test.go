package sqlbase

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationManager_LatestVersion(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	assert.Equal(t, 0, NewMigrationManager(logger, nil, map[int]string{}).LatestVersion())
	assert.Equal(t, 3, NewMigrationManager(logger, nil, map[int]string{2: "", 3: "", 1: ""}).LatestVersion())
}

func TestJSONColumns(t *testing.T) {
	t.Parallel()

	var nilMap map[string]any

	data, err := ToJSON(nilMap)
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = ToJSON(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = ToJSON(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, data.(string))

	var decoded map[string]any
	require.NoError(t, FromJSON([]byte(data.(string)), &decoded))
	assert.Equal(t, map[string]any{"a": float64(1)}, decoded)

	var untouched map[string]any
	require.NoError(t, FromJSON(nil, &untouched))
	assert.Nil(t, untouched)

	require.Error(t, FromJSON([]byte("{"), &decoded))
}
