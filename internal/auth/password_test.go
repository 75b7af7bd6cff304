package auth

import (
	"strings"
	"testing"
)

func TestPasswordHashAndVerify(t *testing.T) {
	p := NewPasswordServiceForTest(4)

	hash, err := p.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash equals the plaintext")
	}

	if err := p.Verify(hash, "correct horse battery staple"); err != nil {
		t.Errorf("Verify(correct password) error = %v", err)
	}
	if err := p.Verify(hash, "wrong password"); err == nil {
		t.Error("Verify(wrong password) did not fail")
	}
}

func TestPasswordHash_Salted(t *testing.T) {
	p := NewPasswordServiceForTest(4)

	// Two hashes of the same password must differ; the salt is embedded.
	a, _ := p.Hash("same password")
	b, _ := p.Hash("same password")
	if a == b {
		t.Error("two hashes of the same password are identical")
	}
}

func TestPasswordHash_RejectsOverlongInput(t *testing.T) {
	p := NewPasswordServiceForTest(4)

	// bcrypt silently truncates at 72 bytes; we reject instead.
	if _, err := p.Hash(strings.Repeat("a", 73)); err == nil {
		t.Error("expected error for a 73-byte password")
	}
}
