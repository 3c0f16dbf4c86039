package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := `# local settings
EPICCART_TEST_PLAIN=plain
export EPICCART_TEST_EXPORTED=exported
EPICCART_TEST_QUOTED="with # hash"
EPICCART_TEST_COMMENTED=value # trailing
EPICCART_TEST_PRESET=from-file
not a pair
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("EPICCART_TEST_PRESET", "from-env")
	for _, key := range []string{"EPICCART_TEST_PLAIN", "EPICCART_TEST_EXPORTED", "EPICCART_TEST_QUOTED", "EPICCART_TEST_COMMENTED"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	require.NoError(t, Load(filepath.Join(dir, "missing.env"), "", path))

	assert.Equal(t, "plain", os.Getenv("EPICCART_TEST_PLAIN"))
	assert.Equal(t, "exported", os.Getenv("EPICCART_TEST_EXPORTED"))
	assert.Equal(t, "with # hash", os.Getenv("EPICCART_TEST_QUOTED"))
	assert.Equal(t, "value", os.Getenv("EPICCART_TEST_COMMENTED"))
	assert.Equal(t, "from-env", os.Getenv("EPICCART_TEST_PRESET"))
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line      string
		key, want string
		ok        bool
	}{
		{line: "A=1", key: "A", want: "1", ok: true},
		{line: "  B = two  ", key: "B", want: "two", ok: true},
		{line: "C='x y'", key: "C", want: "x y", ok: true},
		{line: "D=", key: "D", want: "", ok: true},
		{line: "# comment"},
		{line: "=value"},
		{line: ""},
	}

	for _, tc := range tests {
		key, value, ok := parseLine(tc.line)
		assert.Equal(t, tc.ok, ok, tc.line)
		if tc.ok {
			assert.Equal(t, tc.key, key)
			assert.Equal(t, tc.want, value)
		}
	}
}
