package domain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRelation(t *testing.T, rows [][]bool) *Relation {
	t.Helper()
	r := NewRelation(len(rows))
	for i, row := range rows {
		require.Len(t, row, len(rows))
		for j, v := range row {
			if v {
				r.Set(i, j)
			}
		}
	}
	return r
}

func isReflexive(r *Relation) bool {
	for i := 0; i < r.Size(); i++ {
		if !r.Get(i, i) {
			return false
		}
	}
	return true
}

func isSymmetric(r *Relation) bool { return r.Equal(r.Transpose()) }

func TestRelation_SetGet(t *testing.T) {
	// Cross a word boundary to exercise multi-word rows.
	r := NewRelation(130)
	r.Set(0, 0)
	r.Set(3, 64)
	r.Set(129, 129)
	r.Set(70, 127)

	assert.True(t, r.Get(0, 0))
	assert.True(t, r.Get(3, 64))
	assert.True(t, r.Get(129, 129))
	assert.True(t, r.Get(70, 127))
	assert.False(t, r.Get(64, 3))
	assert.Equal(t, 4, r.Count())
}

func TestRelation_String(t *testing.T) {
	r := mustRelation(t, [][]bool{{true, false}, {true, true}})
	assert.Equal(t, "10\n11", r.String())
	assert.Equal(t, "", NewRelation(0).String())
}

func TestRelation_Transpose(t *testing.T) {
	r := mustRelation(t, [][]bool{
		{true, true, false},
		{false, true, true},
		{false, false, true},
	})

	want := mustRelation(t, [][]bool{
		{true, false, false},
		{true, true, false},
		{false, true, true},
	})

	assert.True(t, want.Equal(r.Transpose()))
	assert.True(t, r.Equal(r.Transpose().Transpose()))
}

func TestRelation_AndOr(t *testing.T) {
	a := mustRelation(t, [][]bool{{true, true}, {false, true}})
	b := mustRelation(t, [][]bool{{true, false}, {true, true}})

	and, err := a.And(b)
	require.NoError(t, err)
	assert.Equal(t, "10\n01", and.String())

	or, err := a.Or(b)
	require.NoError(t, err)
	assert.Equal(t, "11\n11", or.String())

	_, err = a.And(NewRelation(3))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = a.Or(NewRelation(1))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	assert.Equal(t, "11\n01", a.String(), "And must not mutate its receiver.")
}

func TestRelation_SymmetricCore(t *testing.T) {
	r := mustRelation(t, [][]bool{
		{true, true, true},
		{true, true, false},
		{false, true, true},
	})

	core := r.SymmetricCore()
	assert.Equal(t, "110\n110\n001", core.String())
	assert.True(t, isSymmetric(core))
	assert.False(t, isSymmetric(r))
}

func TestRelation_Closure(t *testing.T) {
	t.Run("chain", func(t *testing.T) {
		// 0 -> 1 -> 2 -> 3
		r := NewRelation(4)
		r.Set(0, 1)
		r.Set(1, 2)
		r.Set(2, 3)

		c := r.Closure()
		assert.Equal(t, "0111\n0011\n0001\n0000", c.String())
		assert.Equal(t, 3, r.Count(), "Closure must not mutate its receiver.")
	})

	t.Run("symmetric chain becomes equivalence", func(t *testing.T) {
		r := NewRelation(3)
		for i := 0; i < 3; i++ {
			r.Set(i, i)
		}
		r.Set(0, 1)
		r.Set(1, 0)
		r.Set(1, 2)
		r.Set(2, 1)

		c := r.Closure()
		assert.Equal(t, 9, c.Count())
		assert.True(t, isReflexive(c))
		assert.True(t, isSymmetric(c))
	})

	t.Run("matches reachability fixpoint", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		for iter := 0; iter < 50; iter++ {
			n := 1 + rng.Intn(70)
			r := NewRelation(n)
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					if rng.Intn(n+1) == 0 {
						r.Set(i, j)
					}
				}
			}

			got := r.Closure()
			want := naiveClosure(r)
			require.True(t, want.Equal(got), "closure mismatch for n=%d", n)
		}
	})
}

// naiveClosure iterates relational composition until nothing changes.
func naiveClosure(r *Relation) *Relation {
	out := r.Clone()
	for changed := true; changed; {
		changed = false
		for i := 0; i < out.Size(); i++ {
			for k := 0; k < out.Size(); k++ {
				if !out.Get(i, k) {
					continue
				}
				for j := 0; j < out.Size(); j++ {
					if out.Get(k, j) && !out.Get(i, j) {
						out.Set(i, j)
						changed = true
					}
				}
			}
		}
	}
	return out
}

func TestRelation_CloneIndependence(t *testing.T) {
	r := NewRelation(2)
	r.Set(0, 1)

	c := r.Clone()
	c.Set(1, 0)

	assert.False(t, r.Get(1, 0))
	assert.True(t, c.Get(0, 1))
	assert.False(t, r.Equal(c))
	assert.False(t, r.Equal(nil))
}

func TestRelation_Empty(t *testing.T) {
	r := NewRelation(0)
	assert.Equal(t, 0, r.Size())
	assert.Equal(t, "", r.String())
	assert.True(t, isReflexive(r))
	assert.Equal(t, 0, r.Closure().Size())

	assert.Equal(t, 0, NewRelation(-3).Size())
}
