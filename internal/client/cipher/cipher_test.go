package cipher

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	cases := []string{
		"hello",
		"你好，世界",
		"a",
		"带 emoji 🙂 的长一点的消息内容",
	}

	for _, plaintext := range cases {
		blob, err := Encrypt(plaintext, "my-passphrase")
		require.NoError(t, err)
		require.NotEmpty(t, blob)

		assert.Equal(t, plaintext, Decrypt(blob, "my-passphrase"))
	}
}

func TestEncrypt_SamePlaintextDifferentBlobs(t *testing.T) {
	// 随机盐与随机 nonce 保证同一明文每次产出不同密文
	a, err := Encrypt("same message", "pw")
	require.NoError(t, err)
	b, err := Encrypt("same message", "pw")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, "same message", Decrypt(a, "pw"))
	assert.Equal(t, "same message", Decrypt(b, "pw"))
}

func TestDecrypt_WrongPassphrase(t *testing.T) {
	blob, err := Encrypt("secret", "right-passphrase")
	require.NoError(t, err)

	assert.Equal(t, "", Decrypt(blob, "wrong-passphrase"))
}

func TestDecrypt_GarbageInput(t *testing.T) {
	assert.Equal(t, "", Decrypt("", "pw"))
	assert.Equal(t, "", Decrypt("not base64 at all !!!", "pw"))
	assert.Equal(t, "", Decrypt(base64.StdEncoding.EncodeToString([]byte("short")), "pw"))
}

func TestDecrypt_TamperedBlob(t *testing.T) {
	blob, err := Encrypt("secret", "pw")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	assert.Equal(t, "", Decrypt(tampered, "pw"))
}

func TestDecrypt_TruncatedBlob(t *testing.T) {
	blob, err := Encrypt("a fairly long message to truncate", "pw")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	truncated := base64.StdEncoding.EncodeToString(raw[:saltSize+nonceSize+3])

	assert.Equal(t, "", Decrypt(truncated, "pw"))
}
