// Package word provides the input-symbol primitives for the learning engine:
// a growable ordered alphabet and immutable finite words over it.
// Symbols are plain strings; the alphabet assigns them stable integer indices.
package word

import "fmt"

// Alphabet is a finite ordered set of input symbols. Symbols may be appended
// at runtime; indices of existing symbols never change.
//
// Thread safety: NOT safe for concurrent use. The caller must serialize access.
type Alphabet struct {
	symbols []string
	index   map[string]int
}

// NewAlphabet creates an alphabet from the given symbols, in order.
// Duplicate or empty symbols are rejected.
func NewAlphabet(symbols ...string) (*Alphabet, error) {
	a := &Alphabet{index: make(map[string]int, len(symbols))}
	for _, sym := range symbols {
		if sym == "" {
			return nil, fmt.Errorf("alphabet: empty symbol")
		}
		if _, dup := a.index[sym]; dup {
			return nil, fmt.Errorf("alphabet: duplicate symbol %q", sym)
		}
		a.index[sym] = len(a.symbols)
		a.symbols = append(a.symbols, sym)
	}
	return a, nil
}

// Size returns the number of symbols.
func (a *Alphabet) Size() int { return len(a.symbols) }

// Symbol returns the symbol at the given index.
func (a *Alphabet) Symbol(i int) string { return a.symbols[i] }

// Index returns the index of sym and whether it is present.
func (a *Alphabet) Index(sym string) (int, bool) {
	i, ok := a.index[sym]
	return i, ok
}

// Contains reports whether sym is in the alphabet.
func (a *Alphabet) Contains(sym string) bool {
	_, ok := a.index[sym]
	return ok
}

// Add appends sym and returns its index. Adding an existing symbol is a
// no-op returning its current index.
func (a *Alphabet) Add(sym string) (int, error) {
	if sym == "" {
		return -1, fmt.Errorf("alphabet: empty symbol")
	}
	if i, ok := a.index[sym]; ok {
		return i, nil
	}
	i := len(a.symbols)
	a.index[sym] = i
	a.symbols = append(a.symbols, sym)
	return i, nil
}

// Symbols returns a copy of the symbol list in index order.
func (a *Alphabet) Symbols() []string {
	out := make([]string, len(a.symbols))
	copy(out, a.symbols)
	return out
}
