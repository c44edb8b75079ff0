package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("MarshalPrivateKey: %v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return keyPath
}

func TestNewSSHCommitSigner(t *testing.T) {
	keyPath := writeTestKey(t)

	sign, resolved, err := newSSHCommitSigner(keyPath)
	if err != nil {
		t.Fatalf("newSSHCommitSigner: %v", err)
	}
	if resolved != keyPath {
		t.Fatalf("resolved = %q, want %q", resolved, keyPath)
	}

	sig, err := sign([]byte("tree 123\n"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	parts := strings.SplitN(sig, ":", 4)
	if len(parts) != 4 || parts[0] != commitSignaturePrefix || parts[1] != "ssh-ed25519" {
		t.Fatalf("signature = %q, want %s:ssh-ed25519:<pub>:<sig>", sig, commitSignaturePrefix)
	}
}

func TestNewSSHCommitSignerMissingKey(t *testing.T) {
	_, _, err := newSSHCommitSigner(filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("expected an error for a missing key")
	}
}
