package backup

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plain.db")
	enc := filepath.Join(dir, "plain.db.enc")
	dec := filepath.Join(dir, "restored.db")

	payload := []byte("not really a database but good enough")
	if err := os.WriteFile(src, payload, 0600); err != nil {
		t.Fatalf("write source: %v", err)
	}

	if err := encryptFile(src, enc, "correct horse"); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	encData, err := os.ReadFile(enc)
	if err != nil {
		t.Fatalf("read encrypted: %v", err)
	}
	if bytes.Contains(encData, payload) {
		t.Fatal("ciphertext contains the plaintext")
	}

	if err := decryptFile(enc, dec, "correct horse"); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	got, err := os.ReadFile(dec)
	if err != nil {
		t.Fatalf("read decrypted: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plain.db")
	enc := filepath.Join(dir, "plain.db.enc")

	if err := os.WriteFile(src, []byte("secret"), 0600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := encryptFile(src, enc, "right"); err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if err := decryptFile(enc, filepath.Join(dir, "out.db"), "wrong"); err == nil {
		t.Fatal("decrypt with wrong passphrase should fail")
	}
}

func TestDecryptTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	enc := filepath.Join(dir, "short.enc")
	if err := os.WriteFile(enc, []byte("tiny"), 0600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := decryptFile(enc, filepath.Join(dir, "out.db"), "pass"); err == nil {
		t.Fatal("truncated file should fail to decrypt")
	}
}

func TestSaltVariesPerFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plain.db")
	if err := os.WriteFile(src, []byte("same input"), 0600); err != nil {
		t.Fatalf("write source: %v", err)
	}

	a := filepath.Join(dir, "a.enc")
	b := filepath.Join(dir, "b.enc")
	if err := encryptFile(src, a, "pass"); err != nil {
		t.Fatalf("encrypt a: %v", err)
	}
	if err := encryptFile(src, b, "pass"); err != nil {
		t.Fatalf("encrypt b: %v", err)
	}

	aData, _ := os.ReadFile(a)
	bData, _ := os.ReadFile(b)
	if bytes.Equal(aData[:saltSize], bData[:saltSize]) {
		t.Error("salts should differ between snapshots")
	}
}
