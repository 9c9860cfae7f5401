package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned when the key length does not match the selected mode.
	ErrInvalidKey = errors.New("codec: invalid key")
	// ErrInvalidIV is returned when the CBC initialization vector is not one block long.
	ErrInvalidIV = errors.New("codec: invalid iv")
	// ErrDecrypt is returned when a ciphertext cannot be decoded, authenticated, or unpadded.
	ErrDecrypt = errors.New("codec: decrypt failed")
	// ErrUnknownMode is returned for an unrecognized mode string.
	ErrUnknownMode = errors.New("codec: unknown mode")
	// ErrPlaintextNotAllowed is returned when no key is configured and plaintext storage
	// was not explicitly allowed.
	ErrPlaintextNotAllowed = errors.New("codec: no key configured and plaintext not allowed")
)

// Mode selects the cipher construction.
type Mode string

const (
	// ModeAESCBC is AES-CBC with a fixed IV. Default.
	ModeAESCBC Mode = "aes-cbc"
	// ModeXChaCha20Poly1305 is XChaCha20-Poly1305 with a random nonce per record.
	ModeXChaCha20Poly1305 Mode = "xchacha20poly1305"
)

// Codec transforms payload bytes on their way to and from a container.
type Codec interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
	// Enabled reports whether the codec actually encrypts.
	Enabled() bool
}

// Config selects and parameterizes a codec.
type Config struct {
	Mode           Mode
	Key            []byte
	IV             []byte
	AllowPlaintext bool
}

// New builds the codec described by cfg. An empty key yields [Plaintext] only when
// cfg.AllowPlaintext is set.
func New(cfg Config) (Codec, error) {
	if len(cfg.Key) == 0 {
		if !cfg.AllowPlaintext {
			return nil, ErrPlaintextNotAllowed
		}
		return Plaintext{}, nil
	}

	switch cfg.Mode {
	case "", ModeAESCBC:
		return NewAESCBC(cfg.Key, cfg.IV)
	case ModeXChaCha20Poly1305:
		return NewXChaCha(cfg.Key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
}

// Plaintext stores payloads in the clear.
type Plaintext struct{}

// Encrypt returns plaintext unchanged.
func (Plaintext) Encrypt(plaintext []byte) ([]byte, error) { return plaintext, nil }

// Decrypt returns ciphertext unchanged.
func (Plaintext) Decrypt(ciphertext []byte) ([]byte, error) { return ciphertext, nil }

// Enabled is always false.
func (Plaintext) Enabled() bool { return false }

// AESCBC encrypts with AES-CBC under one key and one IV for every record.
type AESCBC struct {
	block cipher.Block
	iv    []byte
}

// NewAESCBC accepts a 16, 24 or 32 byte key and a 16 byte IV.
func NewAESCBC(key, iv []byte) (*AESCBC, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: aes key must be 16, 24 or 32 bytes, got %d", ErrInvalidKey, len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidIV, aes.BlockSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return &AESCBC{
		block: block,
		iv:    append([]byte(nil), iv...),
	}, nil
}

// Encrypt pads, encrypts and base64-encodes plaintext.
func (c *AESCBC) Encrypt(plaintext []byte) ([]byte, error) {
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	raw := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(raw, padded)

	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// Decrypt reverses Encrypt.
func (c *AESCBC) Decrypt(ciphertext []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(ciphertext)))
	n, err := base64.StdEncoding.Decode(raw, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	raw = raw[:n]
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrDecrypt)
	}

	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(plain, raw)

	return pkcs7Unpad(plain, aes.BlockSize)
}

// Enabled is always true.
func (c *AESCBC) Enabled() bool { return true }

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	out := make([]byte, len(b), len(b)+n)
	copy(out, b)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty block", ErrDecrypt)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
		}
	}
	return b[:len(b)-n], nil
}
