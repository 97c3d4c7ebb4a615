package iojson

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLine(&buf, map[string]any{"id": "itm1"}))
	require.NoError(t, WriteLine(&buf, map[string]any{"id": "itm2"}))
	assert.Equal(t, "{\"id\":\"itm1\"}\n{\"id\":\"itm2\"}\n", buf.String())
}

func TestWriteLine_Unmarshalable(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, WriteLine(&buf, map[string]any{"ch": make(chan int)}))
	assert.Empty(t, buf.String())
}

func TestMarshalError(t *testing.T) {
	got := MarshalError("boom", map[string]any{"path": "usr/ann"})
	assert.JSONEq(t, `{"message":"boom","data":{"path":"usr/ann"}}`, got)

	got = MarshalError("boom", map[string]any{"ch": make(chan int)})
	assert.Contains(t, got, "json_error")
}

func TestWriteWith(t *testing.T) {
	var out, errOut bytes.Buffer
	require.NoError(t, WriteWith(&out, &errOut, map[string]int{"n": 1}))
	assert.Equal(t, "{\n  \"n\": 1\n}\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestFileReader(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(dir, "seed.yaml")
		require.NoError(t, os.WriteFile(path, []byte("name: acme\nitems: [a, b]\n"), 0o644))

		fr := &FileReader[map[string]any]{fileFlagValue: path}
		got, err := fr.Read()
		require.NoError(t, err)
		assert.Equal(t, "acme", got["name"])
		assert.Equal(t, []any{"a", "b"}, got["items"])
	})

	t.Run("json file", func(t *testing.T) {
		path := filepath.Join(dir, "seed.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"name":"acme"}`), 0o644))

		fr := &FileReader[map[string]any]{fileFlagValue: path}
		got, err := fr.Read()
		require.NoError(t, err)
		assert.Equal(t, "acme", got["name"])
	})

	t.Run("stdin", func(t *testing.T) {
		fr := &FileReader[map[string]any]{stdin: strings.NewReader(`{"g":"9q8y"}`)}
		got, err := fr.Read()
		require.NoError(t, err)
		assert.Equal(t, "9q8y", got["g"])
	})

	t.Run("missing file", func(t *testing.T) {
		fr := &FileReader[map[string]any]{fileFlagValue: filepath.Join(dir, "nope.json")}
		_, err := fr.Read()
		require.Error(t, err)
	})

	t.Run("bad json", func(t *testing.T) {
		fr := &FileReader[map[string]any]{stdin: strings.NewReader(`{`)}
		_, err := fr.Read()
		require.ErrorContains(t, err, "decode JSON")
	})
}
