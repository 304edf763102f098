package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetters(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "42")
	t.Setenv("CFG_TEST_BAD_INT", "forty")
	t.Setenv("CFG_TEST_MS", "2500")
	t.Setenv("CFG_TEST_SECS", "90")
	t.Setenv("CFG_TEST_DUR", "3s")
	t.Setenv("CFG_TEST_BOOL", "true")
	t.Setenv("CFG_TEST_LIST", "XLM, USDC,,EURC")

	assert.Equal(t, 42, GetInt("CFG_TEST_INT", 1))
	assert.Equal(t, 1, GetInt("CFG_TEST_BAD_INT", 1))
	assert.Equal(t, 2500*time.Millisecond, GetMillis("CFG_TEST_MS", time.Second))
	assert.Equal(t, 90*time.Second, GetSeconds("CFG_TEST_SECS", time.Second))
	assert.Equal(t, 3*time.Second, GetDuration("CFG_TEST_DUR", time.Second))
	assert.True(t, GetBool("CFG_TEST_BOOL", false))
	assert.Equal(t, []string{"XLM", "USDC", "EURC"}, GetList("CFG_TEST_LIST", nil))
	assert.Equal(t, "fallback", Getenv("CFG_TEST_UNSET", "fallback"))
}

func TestApplyFile_DoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "link2pay.yaml")
	doc := "CFG_FILE_POLL: 2000\nCFG_FILE_NETWORK: mainnet\nCFG_FILE_ASSETS:\n  - XLM\n  - USDC\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	t.Setenv("CFG_FILE_NETWORK", "testnet")
	t.Cleanup(func() {
		os.Unsetenv("CFG_FILE_POLL")
		os.Unsetenv("CFG_FILE_ASSETS")
	})

	applied, err := ApplyFile(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"CFG_FILE_POLL", "CFG_FILE_ASSETS"}, applied)
	assert.Equal(t, "2000", os.Getenv("CFG_FILE_POLL"))
	assert.Equal(t, "testnet", os.Getenv("CFG_FILE_NETWORK"))
	assert.Equal(t, "XLM,USDC", os.Getenv("CFG_FILE_ASSETS"))
}

func TestLoadDotenv_MissingFileIgnored(t *testing.T) {
	require.NoError(t, LoadDotenv(filepath.Join(t.TempDir(), "absent.env")))
}
