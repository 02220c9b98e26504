// Package codewords generates and parses Relay's transfer codes: a
// single decimal digit and two words from a fixed 256-entry list,
// e.g. "7-cinder-marsh" (§3 Transfer code). The word list is embedded
// from wordlist.txt so the same 256 entries ship inside both the
// server and client binaries; a build that diverges from that file
// breaks interoperability, the build-time invariant the spec calls
// out (§6 Code word list).
package codewords

import (
	"crypto/rand"
	_ "embed"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

//go:embed wordlist.txt
var wordlistRaw string

var (
	words     []string
	wordIndex map[string]int
)

func init() {
	for _, w := range strings.Split(strings.TrimSpace(wordlistRaw), "\n") {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		words = append(words, w)
	}
	if len(words) != 256 {
		panic(fmt.Sprintf("codewords: wordlist.txt has %d entries, want 256", len(words)))
	}
	wordIndex = make(map[string]int, len(words))
	for i, w := range words {
		wordIndex[w] = i
	}
}

// Code is a parsed transfer code: the slot digit and the two words
// that make up the PAKE password.
type Code struct {
	Slot  int
	WordA string
	WordB string
}

// String renders c in the D-word1-word2 wire form.
func (c Code) String() string {
	return fmt.Sprintf("%d-%s-%s", c.Slot, c.WordA, c.WordB)
}

// Password returns the string used as the PAKE password: the full
// code text. Both sides must use the identical rendering, so it is the
// same text as String(), which the orchestrator stores as the session
// code for the sender and for the receiver (after Parse).
func (c Code) Password() string {
	return c.String()
}

// Generate picks a random slot digit and two random, distinct words
// from the list (§3).
func Generate() (Code, error) {
	slot, err := randInt(10)
	if err != nil {
		return Code{}, err
	}
	a, err := randInt(len(words))
	if err != nil {
		return Code{}, err
	}
	b, err := randInt(len(words) - 1)
	if err != nil {
		return Code{}, err
	}
	if b >= a {
		b++ // skip a so the two words are always distinct
	}
	return Code{Slot: slot, WordA: words[a], WordB: words[b]}, nil
}

// Parse validates and splits a transfer code typed or pasted by a
// user into its three components.
func Parse(s string) (Code, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return Code{}, fmt.Errorf("codewords: malformed code %q: want D-word-word", s)
	}
	slot, err := strconv.Atoi(parts[0])
	if err != nil || slot < 0 || slot > 9 || len(parts[0]) != 1 {
		return Code{}, fmt.Errorf("codewords: malformed slot digit %q", parts[0])
	}
	wa := strings.ToLower(parts[1])
	wb := strings.ToLower(parts[2])
	if _, ok := wordIndex[wa]; !ok {
		return Code{}, fmt.Errorf("codewords: unrecognized word %q", parts[1])
	}
	if _, ok := wordIndex[wb]; !ok {
		return Code{}, fmt.Errorf("codewords: unrecognized word %q", parts[2])
	}
	return Code{Slot: slot, WordA: wa, WordB: wb}, nil
}

// randInt returns a uniformly distributed integer in [0, n).
func randInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("codewords: random generation failed: %w", err)
	}
	return int(v.Int64()), nil
}
