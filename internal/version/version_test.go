package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuildInfo(t *testing.T, v, c, d string) {
	t.Helper()
	prevVersion, prevCommit, prevDate := version, commit, date
	version, commit, date = v, c, d
	t.Cleanup(func() { version, commit, date = prevVersion, prevCommit, prevDate })
}

func TestLdflagsValuesWin(t *testing.T) {
	withBuildInfo(t, "v1.4.0", "abc123", "2024-06-01")

	v, c, d := Info()
	assert.Equal(t, "v1.4.0", v)
	assert.Equal(t, "abc123", c)
	assert.Equal(t, "2024-06-01", d)
	assert.Equal(t, "v1.4.0", GetVersion())
	assert.Equal(t, "2024-06-01", GetDate())
	assert.Equal(t, "version=v1.4.0 commit=abc123 date=2024-06-01", String())
}

func TestCommitFallsBackToBuildInfo(t *testing.T) {
	withBuildInfo(t, "dev", "unknown", "unknown")

	// Под go test vcs.revision обычно отсутствует; тогда остаётся значение по умолчанию.
	c := GetCommit()
	assert.NotEmpty(t, c)
	_, infoCommit, _ := Info()
	assert.Equal(t, c, infoCommit)
	assert.Contains(t, String(), "commit="+c)
}
