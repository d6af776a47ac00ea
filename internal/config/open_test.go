package config_test

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ciphervault/internal/config"
	"ciphervault/internal/logx"
)

func writeConfig(t *testing.T, dsn, rawKeyHex string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ciphervault.toml")
	body := `
dialect = "sqlite"
dsn = "` + dsn + `"

[wrap_key]
scheme = "raw"

[reaper]
enabled = false
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("CIPHERVAULT_WRAP_RAW_KEY_HEX", rawKeyHex)
	return path
}

func TestOpenBuildsBackendFromConfig(t *testing.T) {
	rawKey := make([]byte, 32)
	for i := range rawKey {
		rawKey[i] = byte(i)
	}
	path := writeConfig(t, "file::memory:?cache=shared", hex.EncodeToString(rawKey))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	backend, err := config.Open(context.Background(), cfg, nil, logx.Default("config_test"))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close(context.Background()) })

	require.Equal(t, "default", backend.GetProfileName())

	_, err = backend.CreateProfile(context.Background(), "alt")
	require.NoError(t, err)
}
