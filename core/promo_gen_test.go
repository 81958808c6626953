package core

import (
	"strings"
	"testing"
)

func TestGeneratePromoCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code := GeneratePromoCode(10)
		if len(code) == 0 || len(code) > 10 {
			t.Fatalf("code %q has bad length", code)
		}
		if code != strings.ToUpper(code) {
			t.Fatalf("code %q is not uppercase", code)
		}
		seen[code] = true
	}
	if len(seen) < 45 {
		t.Fatalf("codes are not random enough: %d unique of 50", len(seen))
	}

	// Non-positive length falls back to the default.
	if code := GeneratePromoCode(0); len(code) == 0 || len(code) > 8 {
		t.Fatalf("default-length code %q", code)
	}
}
