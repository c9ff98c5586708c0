package domain

import (
	"fmt"
	"math/bits"
	"strings"
)

const wordBits = 64

// Relation is a square boolean matrix over a Universe, stored as one
// bitset per row. Relation values are never shared between pipeline
// stages: every operation that derives a relation returns a new one.
type Relation struct {
	n      int
	stride int
	bits   []uint64
}

// NewRelation returns an empty n x n relation.
func NewRelation(n int) *Relation {
	if n < 0 {
		n = 0
	}
	stride := (n + wordBits - 1) / wordBits
	return &Relation{
		n:      n,
		stride: stride,
		bits:   make([]uint64, n*stride),
	}
}

// Size returns the dimension of the matrix.
func (r *Relation) Size() int { return r.n }

// Get reports whether (i, j) is in the relation.
func (r *Relation) Get(i, j int) bool {
	return r.bits[i*r.stride+j/wordBits]&(1<<(uint(j)%wordBits)) != 0
}

// Set adds (i, j) to the relation.
func (r *Relation) Set(i, j int) {
	r.bits[i*r.stride+j/wordBits] |= 1 << (uint(j) % wordBits)
}

func (r *Relation) row(i int) []uint64 {
	return r.bits[i*r.stride : (i+1)*r.stride]
}

// Clone returns an independent copy.
func (r *Relation) Clone() *Relation {
	out := &Relation{n: r.n, stride: r.stride, bits: make([]uint64, len(r.bits))}
	copy(out.bits, r.bits)
	return out
}

// clone lets State deep-copy relations despite their unexported fields.
func (r *Relation) clone() any { return r.Clone() }

// Transpose returns r^T.
func (r *Relation) Transpose() *Relation {
	out := NewRelation(r.n)
	for i := 0; i < r.n; i++ {
		for j := 0; j < r.n; j++ {
			if r.Get(i, j) {
				out.Set(j, i)
			}
		}
	}
	return out
}

// And returns the elementwise conjunction of r and o.
func (r *Relation) And(o *Relation) (*Relation, error) {
	if r.n != o.n {
		return nil, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, r.n, o.n)
	}
	out := NewRelation(r.n)
	for k := range r.bits {
		out.bits[k] = r.bits[k] & o.bits[k]
	}
	return out, nil
}

// Or returns the elementwise disjunction of r and o.
func (r *Relation) Or(o *Relation) (*Relation, error) {
	if r.n != o.n {
		return nil, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, r.n, o.n)
	}
	out := NewRelation(r.n)
	for k := range r.bits {
		out.bits[k] = r.bits[k] | o.bits[k]
	}
	return out, nil
}

// SymmetricCore returns r AND r^T: the pairs related in both directions.
func (r *Relation) SymmetricCore() *Relation {
	out, _ := r.And(r.Transpose())
	return out
}

// Closure returns the transitive closure of r using Warshall's sweep. For
// every intermediate k, any row i that reaches k absorbs row k, which is a
// word-wise OR on the bitsets.
func (r *Relation) Closure() *Relation {
	out := r.Clone()
	for k := 0; k < out.n; k++ {
		rowK := out.row(k)
		for i := 0; i < out.n; i++ {
			if !out.Get(i, k) {
				continue
			}
			rowI := out.row(i)
			for w := range rowI {
				rowI[w] |= rowK[w]
			}
		}
	}
	return out
}

// Count returns the number of pairs in the relation.
func (r *Relation) Count() int {
	total := 0
	for _, w := range r.bits {
		total += bits.OnesCount64(w)
	}
	return total
}

// Equal reports whether both relations hold exactly the same pairs.
func (r *Relation) Equal(o *Relation) bool {
	if o == nil || r.n != o.n {
		return false
	}
	for k := range r.bits {
		if r.bits[k] != o.bits[k] {
			return false
		}
	}
	return true
}

// String renders the matrix as rows of 0 and 1.
func (r *Relation) String() string {
	var sb strings.Builder
	for i := 0; i < r.n; i++ {
		for j := 0; j < r.n; j++ {
			if r.Get(i, j) {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		if i < r.n-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
