package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// ErrPassphraseRequired is returned when the credential key is protected
// and no passphrase was supplied.
var ErrPassphraseRequired = errors.New("SSH key is encrypted, a passphrase is required (set DEEPCHAT_SSH_PASSPHRASE)")

// candidateKeys are tried in order when no key path is configured.
var candidateKeys = []string{"deepchat_ed25519", "id_ed25519", "id_rsa", "id_ecdsa"}

// loadSigner parses the private key at keyPath. The passphrase is only
// used when the key turns out to be encrypted.
func loadSigner(keyPath, passphrase string) (ssh.Signer, error) {
	pemBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(pemBytes)
	var missing *ssh.PassphraseMissingError
	switch {
	case err == nil:
		return signer, nil
	case !errors.As(err, &missing):
		return nil, fmt.Errorf("invalid SSH key %s: %w", keyPath, err)
	case passphrase == "":
		return nil, ErrPassphraseRequired
	}

	if DebugLog != nil {
		DebugLog.Printf("[Sealer] %s is passphrase protected", keyPath)
	}
	signer, err = ssh.ParsePrivateKeyWithPassphrase(pemBytes, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt SSH key (wrong passphrase?): %w", err)
	}
	return signer, nil
}

// ResolveSSHKeyPath returns the configured key, or the first private key
// found among the usual names in ~/.ssh.
func ResolveSSHKeyPath(configured string) (string, error) {
	if configured != "" {
		return ExpandPath(configured), nil
	}

	sshDir := filepath.Join(GetHomeDir(), ".ssh")
	for _, name := range candidateKeys {
		path := filepath.Join(sshDir, name)
		head, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if bytes.Contains(head, []byte("PRIVATE KEY")) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no SSH private key found in %s; set security.ssh_key_path", sshDir)
}
