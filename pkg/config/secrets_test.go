package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecretsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	secrets := map[string]string{
		"ANTHROPIC_API_KEY":    "sk-ant-test123",
		"OPENAI_API_KEY":       "sk-test-openai",
		"GOOGLE_GENAI_API_KEY": "g-test",
	}

	require.NoError(t, EncryptSecretsFile(dir, "test-password-12345", secrets))

	info, err := os.Stat(SecretsPath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	decrypted, err := DecryptSecretsFile(dir, "test-password-12345")
	require.NoError(t, err)
	assert.Equal(t, secrets, decrypted)
}

func TestDecryptWithWrongPassword(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "correct-password", map[string]string{"OPENAI_API_KEY": "sk"}))

	_, err := DecryptSecretsFile(dir, "wrong-password")
	require.Error(t, err)
	assert.Equal(t, "decryption failed (wrong password or corrupted file)", err.Error())
}

func TestDecryptFixesPermissions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "pw", map[string]string{"A": "b"}))
	require.NoError(t, os.Chmod(SecretsPath(dir), 0644))

	_, err := DecryptSecretsFile(dir, "pw")
	require.NoError(t, err)

	info, err := os.Stat(SecretsPath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSecretsFileExists(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, SecretsFileExists(dir))

	require.NoError(t, EncryptSecretsFile(dir, "pw", map[string]string{"OPENAI_API_KEY": "sk"}))
	assert.True(t, SecretsFileExists(dir))
}

func TestGetSecretPrecedence(t *testing.T) {
	t.Cleanup(ClearSecrets)
	t.Setenv("TEST_SECRET", "from-env-var")

	SetDecryptedSecrets(map[string]string{"TEST_SECRET": "from-secrets-file"})
	secret, err := GetSecret("TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-secrets-file", secret)

	SetDecryptedSecrets(map[string]string{"OTHER_SECRET": "other-value"})
	secret, err = GetSecret("TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env-var", secret)

	ClearSecrets()
	require.NoError(t, os.Unsetenv("TEST_SECRET"))
	_, err = GetSecret("TEST_SECRET")
	assert.Error(t, err)
}

func TestLoadAndSaveSecrets(t *testing.T) {
	t.Cleanup(ClearSecrets)
	dir := t.TempDir()

	require.NoError(t, SetSecret("OPENAI_API_KEY", "sk-1"))
	require.NoError(t, SetSecret("ANTHROPIC_API_KEY", "sk-2"))
	require.NoError(t, SaveSecretsToFile(dir, "pw"))

	ClearSecrets()
	assert.Empty(t, SecretNames())

	n, err := LoadSecrets(dir, "pw")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY"}, SecretNames())

	require.NoError(t, DeleteSecret("OPENAI_API_KEY"))
	assert.Equal(t, []string{"ANTHROPIC_API_KEY"}, SecretNames())
}
