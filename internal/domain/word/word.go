package word

import "strings"

// keySep separates symbols in map keys. Symbols are free-form strings, so the
// separator must be a byte that cannot appear in user input read from YAML.
const keySep = "\x1f"

// Word is an immutable finite sequence of input symbols. The zero value is
// the empty word. All derivation methods return fresh words; the underlying
// storage is never shared with a caller-visible mutable slice.
type Word struct {
	syms []string
}

// Epsilon is the empty word.
var Epsilon = Word{}

// New creates a word from the given symbols.
func New(syms ...string) Word {
	if len(syms) == 0 {
		return Epsilon
	}
	cp := make([]string, len(syms))
	copy(cp, syms)
	return Word{syms: cp}
}

// Len returns the number of symbols.
func (w Word) Len() int { return len(w.syms) }

// IsEmpty reports whether this is the empty word.
func (w Word) IsEmpty() bool { return len(w.syms) == 0 }

// At returns the symbol at position i.
func (w Word) At(i int) string { return w.syms[i] }

// Prefix returns the prefix of length n.
func (w Word) Prefix(n int) Word {
	if n == 0 {
		return Epsilon
	}
	return Word{syms: w.syms[:n:n]}
}

// Suffix returns the suffix of length n.
func (w Word) Suffix(n int) Word {
	if n == 0 {
		return Epsilon
	}
	return Word{syms: w.syms[len(w.syms)-n:]}
}

// Append returns w with sym appended.
func (w Word) Append(sym string) Word {
	cp := make([]string, len(w.syms)+1)
	copy(cp, w.syms)
	cp[len(w.syms)] = sym
	return Word{syms: cp}
}

// Prepend returns w with sym prepended.
func (w Word) Prepend(sym string) Word {
	cp := make([]string, len(w.syms)+1)
	cp[0] = sym
	copy(cp[1:], w.syms)
	return Word{syms: cp}
}

// Concat returns the concatenation w·other.
func (w Word) Concat(other Word) Word {
	if w.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return w
	}
	cp := make([]string, len(w.syms)+len(other.syms))
	copy(cp, w.syms)
	copy(cp[len(w.syms):], other.syms)
	return Word{syms: cp}
}

// Equal reports value equality.
func (w Word) Equal(other Word) bool {
	if len(w.syms) != len(other.syms) {
		return false
	}
	for i, s := range w.syms {
		if other.syms[i] != s {
			return false
		}
	}
	return true
}

// Key returns an unambiguous encoding of w for use as a map key.
func (w Word) Key() string { return strings.Join(w.syms, keySep) }

// Symbols returns a copy of the symbol sequence.
func (w Word) Symbols() []string {
	out := make([]string, len(w.syms))
	copy(out, w.syms)
	return out
}

// String renders the word for logs and DOT labels. The empty word renders
// as "ε".
func (w Word) String() string {
	if len(w.syms) == 0 {
		return "ε"
	}
	return strings.Join(w.syms, " ")
}
