// Package crypto seals secret values to a project's public key with NaCl
// anonymous boxes. Keys and ciphertexts travel as base64 strings.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const keySize = 32

var (
	ErrInvalidKey        = errors.New("invalid key")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecrypt           = errors.New("failed to decrypt value")
)

// KeyPair is a base64 encoded curve25519 key pair
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// GenerateKeyPair creates a fresh key pair
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return &KeyPair{
		PublicKey:  base64.StdEncoding.EncodeToString(pub[:]),
		PrivateKey: base64.StdEncoding.EncodeToString(priv[:]),
	}, nil
}

// Encrypt seals plaintext to publicKey
func Encrypt(publicKey, plaintext string) (string, error) {
	pub, err := decodeKey(publicKey)
	if err != nil {
		return "", err
	}
	sealed, err := box.SealAnonymous(nil, []byte(plaintext), pub, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt value: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value sealed by Encrypt
func Decrypt(privateKey, ciphertext string) (string, error) {
	priv, err := decodeKey(privateKey)
	if err != nil {
		return "", err
	}
	pub, err := publicFromPrivate(priv)
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	opened, ok := box.OpenAnonymous(nil, sealed, pub, priv)
	if !ok {
		return "", ErrDecrypt
	}
	return string(opened), nil
}

// ValidatePair reports whether privateKey belongs to publicKey
func ValidatePair(publicKey, privateKey string) bool {
	priv, err := decodeKey(privateKey)
	if err != nil {
		return false
	}
	pub, err := publicFromPrivate(priv)
	if err != nil {
		return false
	}
	return base64.StdEncoding.EncodeToString(pub[:]) == publicKey
}

func decodeKey(key string) (*[keySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != keySize {
		return nil, ErrInvalidKey
	}
	var out [keySize]byte
	copy(out[:], raw)
	return &out, nil
}

func publicFromPrivate(priv *[keySize]byte) (*[keySize]byte, error) {
	raw, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, ErrInvalidKey
	}
	var pub [keySize]byte
	copy(pub[:], raw)
	return &pub, nil
}
