package cipher

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		[]byte("hello12345"),
		bytes.Repeat([]byte{0xAB}, 16),
		bytes.Repeat([]byte("patient,age,dx\n"), 1000),
	}

	for _, in := range inputs {
		ct, key, err := Encrypt(in, nil)
		require.NoError(t, err)
		require.Len(t, key, KeySize)
		assert.Zero(t, (len(ct)-IVSize)%16)
		assert.Greater(t, len(ct), len(in))

		out, err := Decrypt(ct, key)
		require.NoError(t, err)
		assert.Equal(t, len(in), len(out))
		assert.True(t, bytes.Equal(in, out))
	}
}

func TestEncrypt_FreshIVPerCall(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	a, _, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)
	b, _, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)

	assert.NotEqual(t, a[:IVSize], b[:IVSize])
}

func TestEncrypt_RejectsBadKeyLength(t *testing.T) {
	_, _, err := Encrypt([]byte("x"), []byte("short"))
	assert.ErrorIs(t, err, ErrCrypto)
	assert.ErrorIs(t, err, ErrKeyLength)
}

func TestDecrypt_TamperedIV(t *testing.T) {
	ct, key, err := Encrypt([]byte("hello12345"), nil)
	require.NoError(t, err)

	// Single block: the last IV byte lands on the padding byte.
	ct[IVSize-1] ^= 0xFF

	_, err = Decrypt(ct, key)
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	ct, key, err := Encrypt(bytes.Repeat([]byte("a"), 20), nil)
	require.NoError(t, err)

	// Flipping the first block's last byte flips the second block's padding.
	ct[IVSize+15] ^= 0xFF

	_, err = Decrypt(ct, key)
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestDecrypt_WrongKey(t *testing.T) {
	failures := 0
	for i := 0; i < 32; i++ {
		ct, _, err := Encrypt([]byte("hello12345"), nil)
		require.NoError(t, err)
		other, err := GenerateKey()
		require.NoError(t, err)

		out, err := Decrypt(ct, other)
		if err != nil {
			assert.True(t, errors.Is(err, ErrCrypto))
			failures++
			continue
		}
		assert.NotEqual(t, []byte("hello12345"), out)
	}
	assert.GreaterOrEqual(t, failures, 24)
}

func TestDecrypt_Truncated(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	_, err = Decrypt(make([]byte, 8), key)
	assert.ErrorIs(t, err, ErrShortInput)

	_, err = Decrypt(make([]byte, IVSize), key)
	assert.ErrorIs(t, err, ErrBlockSize)

	_, err = Decrypt(make([]byte, IVSize+10), key)
	assert.ErrorIs(t, err, ErrBlockSize)
}

func TestHashVerify(t *testing.T) {
	data := []byte("hello12345")
	digest := Hash(data)

	assert.Len(t, digest, 64)
	assert.True(t, Verify(data, digest))
	assert.True(t, Verify(data, "  "+string(bytes.ToUpper([]byte(digest)))))
	assert.False(t, Verify([]byte("hello12346"), digest))
}

func TestKeyEncoding(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	decoded, err := DecodeKey(EncodeKey(key))
	require.NoError(t, err)
	assert.Equal(t, key, decoded)

	_, err = DecodeKey("zz")
	assert.ErrorIs(t, err, ErrKeyEncoding)
	_, err = DecodeKey("abcd")
	assert.ErrorIs(t, err, ErrKeyLength)
}
