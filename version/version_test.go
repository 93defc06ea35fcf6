package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetVersionInfoPrefersLdflags(t *testing.T) {
	old := Version
	Version = "1.4.0"
	t.Cleanup(func() { Version = old })

	info := GetVersionInfo()
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestInfoJSON(t *testing.T) {
	out, err := Info{Version: "1.0.0", Revision: "abc1234"}.JSON()
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "1.0.0"`)
	assert.Contains(t, out, `"revision": "abc1234"`)
}
