package security

import (
	"testing"
)

func TestHasher_HashAndMatches(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash("123456")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == "123456" {
		t.Fatalf("Hash returned %q", hash)
	}
	if !h.Matches(hash, "123456") {
		t.Fatal("Matches should accept the hashed code")
	}
}

func TestHasher_MatchesWrongCode(t *testing.T) {
	h := NewHasher(4)
	hash, _ := h.Hash("123456")
	if h.Matches(hash, "654321") {
		t.Fatal("Matches with wrong code should fail")
	}
	if h.Matches(hash, "") {
		t.Fatal("Matches with empty code should fail")
	}
	if h.Matches("not-a-hash", "123456") {
		t.Fatal("Matches with invalid hash should fail")
	}
}

func TestHasher_Cost(t *testing.T) {
	testCases := []struct {
		in, want int
	}{
		{12, 12},
		{0, 10},
		{2, 4},
		{40, 31},
	}
	for _, tc := range testCases {
		if got := NewHasher(tc.in).Cost; got != tc.want {
			t.Errorf("NewHasher(%d).Cost = %d, want %d", tc.in, got, tc.want)
		}
	}
}
