package auth

import "testing"

func TestPasswordRoundTrip(t *testing.T) {
	hash, salt, err := HashPassword("kangkung-segar-2026")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "" || salt == "" {
		t.Fatal("empty hash or salt")
	}

	if !VerifyPassword("kangkung-segar-2026", hash, salt) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("wrong-password", hash, salt) {
		t.Error("wrong password accepted")
	}
}

func TestHashPasswordSaltsUniquely(t *testing.T) {
	h1, s1, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h2, s2, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if s1 == s2 {
		t.Error("salts repeat across calls")
	}
	if h1 == h2 {
		t.Error("hashes equal despite distinct salts")
	}
}

func TestVerifyPasswordRejectsGarbageEncoding(t *testing.T) {
	if VerifyPassword("anything", "not-base64!!", "also-not-base64!!") {
		t.Error("malformed stored values verified")
	}
}
