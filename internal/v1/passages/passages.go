// Package passages supplies the text players race to transcribe.
//
// Two providers exist: a bundled static list and a Postgres-backed store. The
// store degrades to the static list on any failure so a race can always start.
package passages

import (
	"context"
	"math/rand"
)

// List is the bundled fallback set. Entries are plain ASCII; keystroke
// validation is byte-indexed.
var List = []string{
	"The quick brown fox jumps over the lazy dog. This pangram contains every letter of the alphabet at least once.",
	"To be or not to be, that is the question: Whether 'tis nobler in the mind to suffer the slings and arrows of outrageous fortune.",
	"In the beginning was the Word, and the Word was with God, and the Word was God.",
	"It was the best of times, it was the worst of times, it was the age of wisdom, it was the age of foolishness.",
	"Call me Ishmael. Some years ago, never mind how long precisely, having little or no money in my purse.",
	"All happy families are alike; each unhappy family is unhappy in its own way.",
	"The only way to do great work is to love what you do. If you haven't found it yet, keep looking.",
	"Programming is not about typing, it's about thinking. The keyboard is just the interface between your thoughts and the computer.",
	"Simplicity is a great virtue but it requires hard work to achieve it and education to appreciate it.",
	"There are only two hard things in computer science: cache invalidation and naming things.",
}

// Provider returns a random passage for a race. Implementations must return a
// non-empty string and must not block past their internal deadline; the room
// controller calls this on its own goroutine at race start.
type Provider interface {
	RandomPassage(ctx context.Context) string
}

// Static serves passages from the bundled list.
type Static struct{}

// NewStatic returns a Provider backed by the bundled list.
func NewStatic() *Static {
	return &Static{}
}

// RandomPassage returns a uniformly random element of List.
func (s *Static) RandomPassage(_ context.Context) string {
	return List[rand.Intn(len(List))]
}
