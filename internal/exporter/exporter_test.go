package exporter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportToJSONWritesNestedFile(t *testing.T) {
	dir := t.TempDir()
	exp, err := New(dir)
	require.NoError(t, err)

	path, err := exp.ExportToJSON(map[string]any{"id": "204554", "nome": "Fulana"}, "deputados/current/204554")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "deputados", "current", "204554.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "Fulana", got["nome"])
	assert.Contains(t, string(raw), "\n  \"id\"")
}

func TestExportToJSONOverwrites(t *testing.T) {
	exp, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = exp.ExportToJSON(map[string]int{"v": 1}, "metadata/partidos.json")
	require.NoError(t, err)
	path, err := exp.ExportToJSON(map[string]int{"v": 2}, "metadata/partidos.json")
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(raw))
}

func TestResolveRejectsEscapes(t *testing.T) {
	exp, err := New(t.TempDir())
	require.NoError(t, err)

	for _, p := range []string{"../outside", "a/../../outside", ""} {
		_, err := exp.Resolve(p)
		assert.Error(t, err, p)
	}

	_, err = exp.Resolve("../x")
	assert.ErrorIs(t, err, ErrPathEscapesBase)
}
