package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

// keyDerivationMessage is signed to derive the AES key. Changing it makes
// every existing credentials.enc unreadable.
var keyDerivationMessage = []byte("deepchat-encryption-key-derivation-v1")

// Sealer encrypts small blobs with AES-256-GCM under a key derived from an
// SSH private key. The same SSH key always yields the same AES key.
type Sealer struct {
	aesKey []byte
}

// NewSSHSealer loads the key at keyPath. passphrase may be empty for
// unprotected keys.
func NewSSHSealer(keyPath, passphrase string) (*Sealer, error) {
	signer, err := loadSigner(keyPath, passphrase)
	if err != nil {
		return nil, err
	}
	aesKey, err := deriveKey(signer)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return &Sealer{aesKey: aesKey}, nil
}

// Seal encrypts plaintext.
// Format: [nonce (12 bytes)][ciphertext + tag]
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(s.aesKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func (s *Sealer) Open(ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(s.aesKey)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// deriveKey hashes a signature over keyDerivationMessage into an AES-256
// key. Only deterministic schemes (ed25519, RSA PKCS#1 v1.5) give a stable
// key.
func deriveKey(signer ssh.Signer) ([]byte, error) {
	signature, err := signer.Sign(rand.Reader, keyDerivationMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	hash := sha256.Sum256(signature.Blob)
	return hash[:], nil
}
