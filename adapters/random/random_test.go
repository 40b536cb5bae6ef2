package random_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/artpar/toolgate/adapters/random"
	"github.com/artpar/toolgate/ports"
)

var (
	_ ports.Random = random.Secure{}
	_ ports.Random = (*random.Sequence)(nil)
)

func TestSecure_Bytes(t *testing.T) {
	r := random.Secure{}

	a, err := r.Bytes(32)
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if len(a) != 32 {
		t.Errorf("expected 32 bytes, got %d", len(a))
	}

	b, _ := r.Bytes(32)
	if bytes.Equal(a, b) {
		t.Error("random bytes should be different")
	}
}

func TestSequence_Bytes(t *testing.T) {
	s := random.NewSequence(1)

	first, _ := s.Bytes(3)
	second, _ := s.Bytes(3)

	if !bytes.Equal(first, []byte{1, 2, 3}) {
		t.Errorf("first = %v, want [1 2 3]", first)
	}
	if !bytes.Equal(second, []byte{2, 3, 4}) {
		t.Errorf("second = %v, want [2 3 4]", second)
	}
}

func TestSequence_Fail(t *testing.T) {
	s := random.NewSequence(0)
	boom := errors.New("entropy exhausted")
	s.Fail(boom)

	if _, err := s.Bytes(8); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}
