package hasher_test

import (
	"strings"
	"testing"
	"time"

	"github.com/artpar/toolgate/adapters/hasher"
	"github.com/artpar/toolgate/domain/key"
	"github.com/artpar/toolgate/domain/tier"
	"golang.org/x/crypto/bcrypt"
)

func TestNewBcrypt_Cost(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{bcrypt.MinCost, bcrypt.MinCost},
		{12, 12},
		{0, bcrypt.DefaultCost},
		{bcrypt.MaxCost + 1, bcrypt.DefaultCost},
	}

	for _, tt := range tests {
		if got := hasher.NewBcrypt(tt.in).Cost(); got != tt.want {
			t.Errorf("NewBcrypt(%d).Cost() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBcrypt_HashCompare(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost)
	raw := "tk_" + strings.Repeat("0a", 32)

	hash, err := h.Hash(raw)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if string(hash) == raw {
		t.Error("hash should not equal the raw key")
	}
	if !h.Compare(hash, raw) {
		t.Error("Compare() should match the raw key")
	}
	if h.Compare(hash, raw+"x") {
		t.Error("Compare() should reject a different key")
	}
}

func TestFunc_GeneratesVerifiableKeys(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost)

	raw, k, err := key.Generate(key.DefaultPrefix, hasher.Func(h), key.CreateParams{Owner: "acme", Tier: tier.Free}, bcryptTime)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !h.Compare(k.Hash, raw) {
		t.Error("generated key hash does not verify")
	}
}

var bcryptTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
