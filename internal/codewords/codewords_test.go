package codewords

import "testing"

func TestGenerateParseRoundTrip(t *testing.T) {
	for i := 0; i < 50; i++ {
		c, err := Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if c.WordA == c.WordB {
			t.Fatalf("generated code repeats a word: %s", c)
		}
		parsed, err := Parse(c.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.String(), err)
		}
		if parsed != c {
			t.Fatalf("round trip mismatch: got %+v, want %+v", parsed, c)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"7-onlyoneword",
		"x-cinder-marsh",
		"12-cinder-marsh",
		"7-notaword-marsh",
		"7-cinder-notaword",
	}
	for _, s := range cases {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) = nil error, want error", s)
		}
	}
}

func TestParseCaseInsensitive(t *testing.T) {
	c, err := Parse("3-CINDER-Marsh")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.WordA != "cinder" || c.WordB != "marsh" {
		t.Fatalf("got %+v, want lowercase words", c)
	}
}

func TestWordlistSize(t *testing.T) {
	if len(words) != 256 {
		t.Fatalf("embedded wordlist has %d entries, want 256", len(words))
	}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		if seen[w] {
			t.Fatalf("duplicate word in list: %s", w)
		}
		seen[w] = true
	}
}

func TestPasswordMatchesString(t *testing.T) {
	c := Code{Slot: 4, WordA: "cinder", WordB: "marsh"}
	if c.Password() != c.String() {
		t.Fatalf("Password() and String() diverged: %q vs %q", c.Password(), c.String())
	}
	if c.String() != "4-cinder-marsh" {
		t.Fatalf("unexpected rendering: %q", c.String())
	}
}
