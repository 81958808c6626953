package password

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestArgon2idRoundTrip(t *testing.T) {
	phc, err := HashArgon2id("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashArgon2id: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$") {
		t.Fatalf("hash is not PHC formatted: %q", phc)
	}

	ok, err := VerifyArgon2id(phc, "correct horse battery staple")
	if err != nil || !ok {
		t.Fatalf("Verify = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = VerifyArgon2id(phc, "wrong password")
	if err != nil || ok {
		t.Fatalf("Verify wrong password = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestArgon2idHashesAreSalted(t *testing.T) {
	a, err := HashArgon2id("same password")
	if err != nil {
		t.Fatal(err)
	}
	b, err := HashArgon2id("same password")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestVerifyArgon2idMalformed(t *testing.T) {
	for _, h := range []string{"", "plain", "$argon2id$bad", "$2b$10$abcdefg"} {
		if _, err := VerifyArgon2id(h, "pw"); err == nil {
			t.Fatalf("hash %q should be rejected as malformed", h)
		}
	}
}

func TestBcryptLegacyPath(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("old password"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if !IsBcryptHash(string(legacy)) {
		t.Fatalf("%q should be detected as bcrypt", legacy)
	}
	if IsBcryptHash("$argon2id$v=19$...") {
		t.Fatal("argon2id hash misdetected as bcrypt")
	}

	ok, err := VerifyBcrypt(string(legacy), "old password")
	if err != nil || !ok {
		t.Fatalf("VerifyBcrypt = (%v, %v), want (true, nil)", ok, err)
	}
	ok, _ = VerifyBcrypt(string(legacy), "wrong")
	if ok {
		t.Fatal("wrong password must not verify")
	}
}

func TestValidatePolicy(t *testing.T) {
	if err := Validate("short"); err == nil {
		t.Fatal("7-character passwords should be rejected")
	}
	if err := Validate("long enough"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := Validate(strings.Repeat("x", 257)); err == nil {
		t.Fatal("overlong passwords should be rejected")
	}
}
