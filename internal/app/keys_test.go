package app

import (
	"encoding/base64"
	"encoding/hex"
	"testing"
)

func TestDecodeKeyHex(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x04}
	decoded, err := DecodeKey(hex.EncodeToString(raw))
	if err != nil {
		t.Fatalf("DecodeKey returned error: %v", err)
	}
	if string(decoded) != string(raw) {
		t.Fatalf("expected %v, got %v", raw, decoded)
	}
}

func TestDecodeKeyBase64(t *testing.T) {
	raw := []byte("sixteen-byte-key")
	decoded, err := DecodeKey(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("DecodeKey returned error: %v", err)
	}
	if string(decoded) != string(raw) {
		t.Fatalf("expected %q, got %q", raw, decoded)
	}
}

func TestDecodeKeyRawFallback(t *testing.T) {
	decoded, err := DecodeKey("not~valid~encoding")
	if err != nil {
		t.Fatalf("DecodeKey returned error: %v", err)
	}
	if string(decoded) != "not~valid~encoding" {
		t.Fatalf("expected raw bytes fallback, got %q", decoded)
	}
}

func TestDecodeKeyEmpty(t *testing.T) {
	if _, err := DecodeKey("  "); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestKeyByteLength(t *testing.T) {
	length, err := KeyByteLength(hex.EncodeToString(make([]byte, 32)))
	if err != nil {
		t.Fatalf("KeyByteLength returned error: %v", err)
	}
	if length != 32 {
		t.Fatalf("expected 32, got %d", length)
	}

	length, err = KeyByteLength("")
	if err != nil || length != 0 {
		t.Fatalf("expected 0 for empty key, got %d err=%v", length, err)
	}
}
