// Package cryptostore derives the daemon's master encryption key from the
// machine and user identity and provides the AEAD primitives the
// credential store seals its contents with.
package cryptostore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

const hkdfInfoPrefix = "localbridge-credential-store"

// Key is a 32-byte AES-256 key that zeroes its backing array on Close so
// it doesn't linger in memory past its useful life.
type Key struct {
	bytes [KeySize]byte
}

// Bytes returns the key material. The returned slice aliases Key's backing
// array; callers must not retain it past Close.
func (k *Key) Bytes() []byte {
	return k.bytes[:]
}

// Close zeroes the key material.
func (k *Key) Close() {
	for i := range k.bytes {
		k.bytes[i] = 0
	}
}

// DeriveMasterKey derives the daemon's master key from a stable machine
// identity and the invoking username via HKDF-SHA256. The same
// (machineID, username) pair always yields the same key, so the store can
// be reopened across daemon restarts without persisting the key itself.
func DeriveMasterKey(machineID, username string) (*Key, error) {
	if machineID == "" {
		return nil, fmt.Errorf("machineID must not be empty")
	}
	if username == "" {
		return nil, fmt.Errorf("username must not be empty")
	}

	reader := hkdf.New(sha256.New, []byte(machineID), []byte(hkdfInfoPrefix), []byte(username))
	key := &Key{}
	if _, err := io.ReadFull(reader, key.bytes[:]); err != nil {
		return nil, fmt.Errorf("deriving master key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext with AES-256-GCM under key, returning
// nonce||ciphertext||tag. aad is authenticated but not encrypted and may
// be nil.
func Seal(key *Key, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts a blob produced by Seal. It returns an error on
// authentication failure, including a wrong key or tampered ciphertext.
func Open(key *Key, sealed, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("sealed blob shorter than nonce")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return plaintext, nil
}

func newGCM(key *Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
