package vault

import (
	"encoding/base64"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentsea/taskara/internal/config"
)

// The key is acquired once per process, so it has to be in place before
// any test touches the cipher.
func TestMain(m *testing.M) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	os.Setenv(config.EnvEncryptionKey, base64.StdEncoding.EncodeToString(key))
	os.Exit(m.Run())
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	device := map[string]any{
		"name": "desktop1",
		"config": map[string]any{
			"os":  "linux",
			"ram": float64(16),
		},
	}
	sealed, err := EncryptJSON(device)
	require.NoError(t, err)
	require.NotEmpty(t, sealed)
	require.NotContains(t, sealed, "desktop1")

	var out map[string]any
	require.NoError(t, DecryptJSON(sealed, &out))
	require.Equal(t, device, out)
}

func TestEncryptNilValue(t *testing.T) {
	sealed, err := EncryptJSON(nil)
	require.NoError(t, err)
	require.Empty(t, sealed)
}

func TestDecryptEmptyIsNoOp(t *testing.T) {
	out := map[string]any{"keep": true}
	require.NoError(t, DecryptJSON("", &out))
	require.Equal(t, map[string]any{"keep": true}, out)
}

func TestEncryptionIsNonDeterministic(t *testing.T) {
	first, err := EncryptJSON("secret")
	require.NoError(t, err)
	second, err := EncryptJSON("secret")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	require.Error(t, DecryptJSON("not base64!!", new(string)))

	short := base64.StdEncoding.EncodeToString([]byte("tiny"))
	require.Error(t, DecryptJSON(short, new(string)))

	tampered := base64.StdEncoding.EncodeToString(make([]byte, 64))
	require.Error(t, DecryptJSON(tampered, new(string)))
}
