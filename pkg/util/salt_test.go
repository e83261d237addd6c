package utils

import "testing"

func TestSaltGeneratorIsSeeded(t *testing.T) {
	a := CreateSaltGenerator(42)
	b := CreateSaltGenerator(42)

	for i := 0; i < 16; i++ {
		sa, sb := a.NewSalt(), b.NewSalt()
		if sa != sb {
			t.Fatalf("same seed diverged at %d: %x != %x", i, sa, sb)
		}
		if sa.IsZero() {
			t.Fatal("zero salt handed out")
		}
	}

	if CreateSaltGenerator(1).NewSalt() == CreateSaltGenerator(2).NewSalt() {
		t.Fatal("different seeds produced the same salt")
	}
}

func TestContains(t *testing.T) {
	hosts := []string{"localhost", "arena.example.com"}
	if !Contains("localhost", hosts) || Contains("evil.example.com", hosts) {
		t.Fatal("Contains is wrong")
	}
	if Contains("x", nil) {
		t.Fatal("nil haystack")
	}
}
