// Package nibble implements the 4-bit-path primitives the Merkle Patricia
// trie is built on: an owned, packed nibble buffer (NibbleBuf) and a
// borrowed view over one (Nibbles) that supports O(1) splitting by sharing
// the underlying byte slice and tracking skip-first/skip-last flags for
// the odd-aligned ends, instead of reallocating on every split.
package nibble

import "strings"

// NibbleBuf owns a sequence of nibbles packed two-per-byte, high nibble
// first. skipLast indicates the final byte only contributes its high
// nibble, so odd-length sequences don't need a sentinel value.
type NibbleBuf struct {
	Bytes    []byte
	SkipLast bool
}

// FromNibbleValues builds a NibbleBuf from a slice of individual nibble
// values (each in [0,16)).
func FromNibbleValues(vals []byte) NibbleBuf {
	n := NibbleBuf{Bytes: make([]byte, (len(vals)+1)/2)}
	for i, v := range vals {
		if i%2 == 0 {
			n.Bytes[i/2] = v << 4
		} else {
			n.Bytes[i/2] |= v & 0x0f
		}
	}
	n.SkipLast = len(vals)%2 == 1
	return n
}

// FromBytes packs the full nibble stream of b (two nibbles per byte, no
// skip) — the representation used to address a leaf by a full key such as
// an Address or H256.
func FromBytes(b []byte) NibbleBuf {
	out := make([]byte, len(b))
	copy(out, b)
	return NibbleBuf{Bytes: out}
}

// Len returns the number of nibbles in the buffer.
func (n NibbleBuf) Len() int {
	l := len(n.Bytes) * 2
	if n.SkipLast {
		l--
	}
	return l
}

// View returns the full, unskipped borrowed view over n.
func (n NibbleBuf) View() Nibbles {
	return Nibbles{data: n.Bytes, skipLast: n.SkipLast, length: n.Len()}
}

// Nibbles is a borrowed, O(1)-sliceable view: data is shared with its
// parent (splitting never copies), skipFirst/skipLast mark whether the
// first/last byte of data contributes only its low/high nibble.
type Nibbles struct {
	data      []byte
	skipFirst bool
	skipLast  bool
	length    int
}

// Len returns the number of nibbles visible through this view.
func (n Nibbles) Len() int { return n.length }

// IsEmpty reports whether the view carries zero nibbles.
func (n Nibbles) IsEmpty() bool { return n.length == 0 }

// At returns the i-th nibble visible through this view.
func (n Nibbles) At(i int) byte {
	if i < 0 || i >= n.length {
		panic("nibble index out of range")
	}
	g := i
	if n.skipFirst {
		g++
	}
	b := n.data[g/2]
	if g%2 == 0 {
		return b >> 4
	}
	return b & 0x0f
}

// SplitFirst returns the first nibble and the remaining view. Panics if n
// is empty.
func (n Nibbles) SplitFirst() (byte, Nibbles) {
	first := n.At(0)
	_, rest := n.SplitAt(1)
	return first, rest
}

// SplitAt splits n into [0,at) and [at,Len()), both sharing n's backing
// array — O(1), no allocation.
func (n Nibbles) SplitAt(at int) (Nibbles, Nibbles) {
	if at < 0 || at > n.length {
		panic("split index out of range")
	}
	s := 0
	if n.skipFirst {
		s = 1
	}
	if at == 0 {
		return Nibbles{data: n.data[:0], length: 0}, n
	}
	if at == n.length {
		return n, Nibbles{data: n.data[len(n.data):], length: 0}
	}

	lastIncluded := s + at - 1
	leftByteLen := lastIncluded/2 + 1
	left := Nibbles{
		data:      n.data[:leftByteLen],
		skipFirst: n.skipFirst,
		skipLast:  lastIncluded%2 == 0,
		length:    at,
	}

	rightStart := s + at
	rightByteStart := rightStart / 2
	right := Nibbles{
		data:      n.data[rightByteStart:],
		skipFirst: rightStart%2 == 1,
		skipLast:  n.skipLast,
		length:    n.length - at,
	}
	return left, right
}

// CommonPrefixLen returns the length of the longest common prefix of n and
// o.
func (n Nibbles) CommonPrefixLen(o Nibbles) int {
	max := n.length
	if o.length < max {
		max = o.length
	}
	i := 0
	for i < max && n.At(i) == o.At(i) {
		i++
	}
	return i
}

// StripPrefix returns (remainder, true) if prefix is a prefix of n,
// otherwise (Nibbles{}, false).
func (n Nibbles) StripPrefix(prefix Nibbles) (Nibbles, bool) {
	if prefix.length > n.length || n.CommonPrefixLen(prefix) != prefix.length {
		return Nibbles{}, false
	}
	_, rest := n.SplitAt(prefix.length)
	return rest, true
}

// Equal reports nibble-wise equality.
func (n Nibbles) Equal(o Nibbles) bool {
	return n.length == o.length && n.CommonPrefixLen(o) == n.length
}

// Compare gives a total, lexicographic order over nibble sequences,
// shorter-is-smaller on ties over the common prefix.
func (n Nibbles) Compare(o Nibbles) int {
	cp := n.CommonPrefixLen(o)
	if cp < n.length && cp < o.length {
		a, b := n.At(cp), o.At(cp)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	switch {
	case n.length < o.length:
		return -1
	case n.length > o.length:
		return 1
	}
	return 0
}

// Values materializes the view as a slice of nibble values. Used where an
// allocation is unavoidable, e.g. building a fresh NibbleBuf.
func (n Nibbles) Values() []byte {
	out := make([]byte, n.length)
	for i := range out {
		out[i] = n.At(i)
	}
	return out
}

// Own copies the view into an independent NibbleBuf, detaching it from its
// parent's backing array. Call this before storing a Nibbles beyond the
// lifetime of the structure it was split from.
func (n Nibbles) Own() NibbleBuf { return FromNibbleValues(n.Values()) }

// Prepend returns a fresh, owned Nibbles with head followed by n's nibbles.
func (n Nibbles) Prepend(head byte) Nibbles {
	vals := append([]byte{head}, n.Values()...)
	nb := FromNibbleValues(vals)
	return nb.View()
}

// Append returns a fresh, owned Nibbles with o's nibbles appended after
// n's.
func (n Nibbles) Append(o Nibbles) Nibbles {
	vals := append(n.Values(), o.Values()...)
	nb := FromNibbleValues(vals)
	return nb.View()
}

// Hex renders the view as lowercase hex, one character per nibble.
func (n Nibbles) Hex() string {
	var sb strings.Builder
	for i := 0; i < n.length; i++ {
		sb.WriteByte("0123456789abcdef"[n.At(i)])
	}
	return sb.String()
}

func (n Nibbles) String() string { return n.Hex() }

// FromKeyBytes splits a full key (e.g. an Address or H256) into its
// complete nibble sequence.
func FromKeyBytes(key []byte) Nibbles {
	return FromBytes(key).View()
}
