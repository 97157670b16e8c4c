package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func writeTokenFile(t *testing.T, passphrase string, tokens map[string]string) string {
	t.Helper()

	salt := make([]byte, 32)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	plain, err := json.Marshal(tokens)
	require.NoError(t, err)

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	nonce := make([]byte, gcm.NonceSize())
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	data, err := json.Marshal(tokenFile{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, plain, nil)),
		Version:   1,
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tokens.enc")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestResolveSchemes(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set(keyringService, "backup", "keyring-token-0001"))
	t.Setenv("VK_TEST_TOKEN", "env-token-0001")
	path := writeTokenFile(t, "s3cret", map[string]string{"primary": "file-token-0001"})

	r := NewResolver("s3cret")
	tokens, err := r.Resolve([]string{
		"literal-token",
		"env:VK_TEST_TOKEN",
		"keyring:backup",
		"file:" + path + "#primary",
		"literal-token",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"literal-token", "env-token-0001", "keyring-token-0001", "file-token-0001"}, tokens)
}

func TestResolveReportsEveryFailure(t *testing.T) {
	keyring.MockInit()
	r := NewResolver("")

	tokens, err := r.Resolve([]string{"env:VK_TEST_MISSING", "ok-token", "keyring:nobody", "file:nopath", ""})

	assert.Equal(t, []string{"ok-token"}, tokens)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialNotFound)
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestResolveUnknownSchemeIsLiteral(t *testing.T) {
	r := NewResolver("")
	tokens, err := r.Resolve([]string{"vk1.a:abcdef"})
	require.NoError(t, err)
	assert.Equal(t, []string{"vk1.a:abcdef"}, tokens)
}

func TestResolveCustomSource(t *testing.T) {
	r := NewResolver("").WithSource("vault", SourceFunc(func(name string) (string, error) {
		return "vault-" + name, nil
	}))
	tokens, err := r.Resolve([]string{"vault:a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"vault-a"}, tokens)
}

func TestOpenTokenFileWrongPassphrase(t *testing.T) {
	path := writeTokenFile(t, "right", map[string]string{"a": "b"})

	_, err := OpenTokenFile(path, "wrong")
	assert.Error(t, err)

	_, err = OpenTokenFile(path, "")
	assert.Error(t, err)
}

func TestTokenFileLookupMissing(t *testing.T) {
	path := writeTokenFile(t, "pw", map[string]string{"a": "b"})
	f, err := OpenTokenFile(path, "pw")
	require.NoError(t, err)

	_, err = f.Lookup("zzz")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "********", Mask("short"))
	assert.Equal(t, "abcd...wxyz", Mask("abcdefghijklmnopqrstuvwxyz"))
}
