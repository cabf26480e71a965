// Package cipher encrypts dataset payloads with AES-256-CBC. The output of
// Encrypt is IV || ciphertext with PKCS#7 padding.
package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KeySize is the AES-256 key length in bytes
const KeySize = 32

// IVSize is the CBC initialization vector length in bytes
const IVSize = aes.BlockSize

// ErrCrypto is the sentinel every cipher failure wraps
var ErrCrypto = errors.New("crypto error")

var (
	ErrKeyLength    = fmt.Errorf("%w: key must be %d bytes", ErrCrypto, KeySize)
	ErrShortInput   = fmt.Errorf("%w: ciphertext shorter than IV", ErrCrypto)
	ErrBlockSize    = fmt.Errorf("%w: ciphertext is not a multiple of the block size", ErrCrypto)
	ErrInvalidPad   = fmt.Errorf("%w: invalid padding", ErrCrypto)
	ErrKeyEncoding  = fmt.Errorf("%w: key is not valid hex", ErrCrypto)
	ErrRandomSource = fmt.Errorf("%w: random source failed", ErrCrypto)
)

// GenerateKey returns a fresh 256-bit key from crypto/rand
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomSource, err)
	}
	return key, nil
}

// Encrypt encrypts plaintext under key. A nil key is replaced by a freshly
// generated one, which is returned alongside the ciphertext.
func Encrypt(plaintext, key []byte) ([]byte, []byte, error) {
	if key == nil {
		var err error
		if key, err = GenerateKey(); err != nil {
			return nil, nil, err
		}
	}
	if len(key) != KeySize {
		return nil, nil, ErrKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	padded := pad(plaintext)
	out := make([]byte, IVSize+len(padded))
	iv := out[:IVSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrRandomSource, err)
	}

	gocipher.NewCBCEncrypter(block, iv).CryptBlocks(out[IVSize:], padded)
	return out, key, nil
}

// Decrypt reverses Encrypt. Wrong keys and tampered input are reported
// through the padding check.
func Decrypt(ciphertextWithIV, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrKeyLength
	}
	if len(ciphertextWithIV) < IVSize {
		return nil, ErrShortInput
	}

	body := ciphertextWithIV[IVSize:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return nil, ErrBlockSize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	plain := make([]byte, len(body))
	gocipher.NewCBCDecrypter(block, ciphertextWithIV[:IVSize]).CryptBlocks(plain, body)

	return unpad(plain)
}

// Hash returns the hex SHA-256 digest of data
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify compares data against an expected hex digest
func Verify(data []byte, expectedHex string) bool {
	got := Hash(data)
	want := strings.ToLower(strings.TrimSpace(expectedHex))
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// EncodeKey renders a key as lower-case hex
func EncodeKey(key []byte) string {
	return hex.EncodeToString(key)
}

// DecodeKey parses a hex key and checks its length
func DecodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, ErrKeyEncoding
	}
	if len(key) != KeySize {
		return nil, ErrKeyLength
	}
	return key, nil
}

func pad(in []byte) []byte {
	padding := aes.BlockSize - len(in)%aes.BlockSize
	out := make([]byte, len(in), len(in)+padding)
	copy(out, in)
	for i := 0; i < padding; i++ {
		out = append(out, byte(padding))
	}
	return out
}

func unpad(in []byte) ([]byte, error) {
	if len(in) == 0 {
		return nil, ErrInvalidPad
	}
	padding := int(in[len(in)-1])
	if padding == 0 || padding > aes.BlockSize || padding > len(in) {
		return nil, ErrInvalidPad
	}
	for _, b := range in[len(in)-padding:] {
		if int(b) != padding {
			return nil, ErrInvalidPad
		}
	}
	return in[:len(in)-padding], nil
}
