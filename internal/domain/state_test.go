package domain

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewState verifies that a new State instance is initialized correctly.
func TestNewState(t *testing.T) {
	state := NewState()

	assert.NotNil(t, state.data, "NewState() should initialize the data map.")
	assert.Empty(t, state.data, "NewState() should create an empty state.")
}

// TestState_Get covers typed retrieval of stage values.
func TestState_Get(t *testing.T) {
	tests := []struct {
		name   string
		setup  func() State
		assert func(t *testing.T, state State)
	}{
		{
			name: "get existing ranking",
			setup: func() State {
				return With(NewState(), KeyRankingA, ClusterRanking{{1}, {2, 3}})
			},
			assert: func(t *testing.T, state State) {
				got, ok := Get(state, KeyRankingA)
				assert.True(t, ok, "Get() should find an existing key.")
				assert.Equal(t, ClusterRanking{{1}, {2, 3}}, got)
			},
		},
		{
			name: "get non-existent key",
			setup: func() State {
				return NewState()
			},
			assert: func(t *testing.T, state State) {
				_, ok := Get(state, KeyKernel)
				assert.False(t, ok, "Get() should not find a non-existent key.")
			},
		},
		{
			name: "get kernel pairs",
			setup: func() State {
				return With(NewState(), KeyKernel, []Pair{{Lo: 1, Hi: 2}, {Lo: 3, Hi: 4}})
			},
			assert: func(t *testing.T, state State) {
				got, ok := Get(state, KeyKernel)
				assert.True(t, ok)
				assert.Equal(t, []Pair{{Lo: 1, Hi: 2}, {Lo: 3, Hi: 4}}, got)
			},
		},
		{
			name: "get universe",
			setup: func() State {
				return With(NewState(), KeyUniverse, Universe{IDs: []ObjectID{1, 5, 9}})
			},
			assert: func(t *testing.T, state State) {
				got, ok := Get(state, KeyUniverse)
				assert.True(t, ok)
				assert.Equal(t, []ObjectID{1, 5, 9}, got.IDs)
			},
		},
		{
			name: "type mismatch through raw write",
			setup: func() State {
				return NewState().WithMultiple(map[string]any{KeyKernel.Name(): "not pairs"})
			},
			assert: func(t *testing.T, state State) {
				_, ok := Get(state, KeyKernel)
				assert.False(t, ok, "Get() should reject a value of the wrong type.")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assert(t, tt.setup())
		})
	}
}

func TestMustGet(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		state := With(NewState(), KeyClusters, []Cluster{{1, 2}, {3}})
		got, err := MustGet(state, KeyClusters)
		require.NoError(t, err)
		assert.Equal(t, []Cluster{{1, 2}, {3}}, got)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := MustGet(NewState(), KeyClusters)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrKeyNotFound)

		var stateErr *StateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, "clusters", stateErr.Key)
	})

	t.Run("wrong type", func(t *testing.T) {
		state := NewState().WithMultiple(map[string]any{KeyClusters.Name(): 42})
		_, err := MustGet(state, KeyClusters)
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})
}

// TestState_With verifies copy-on-write semantics of With.
func TestState_With(t *testing.T) {
	s1 := NewState()
	s2 := With(s1, KeyRankingA, ClusterRanking{{1}})

	_, ok := Get(s1, KeyRankingA)
	assert.False(t, ok, "Original state must not change.")

	got, ok := Get(s2, KeyRankingA)
	assert.True(t, ok)
	assert.Equal(t, ClusterRanking{{1}}, got)
}

func TestState_WithMultiple(t *testing.T) {
	state := NewState().WithMultiple(map[string]any{
		KeyRankingA.Name(): ClusterRanking{{1}, {2}},
		KeyRankingB.Name(): ClusterRanking{{2}, {1}},
	})

	a, okA := Get(state, KeyRankingA)
	b, okB := Get(state, KeyRankingB)
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, ClusterRanking{{1}, {2}}, a)
	assert.Equal(t, ClusterRanking{{2}, {1}}, b)
	assert.Equal(t, []string{"ranking.a", "ranking.b"}, state.Keys())
}

// TestState_DeepCopy ensures that values stored in and read from State
// cannot be mutated from the outside.
func TestState_DeepCopy(t *testing.T) {
	t.Run("ranking levels", func(t *testing.T) {
		original := ClusterRanking{{1, 2}, {3}}
		state := With(NewState(), KeyRankingA, original)
		original[0][0] = 99

		got, _ := Get(state, KeyRankingA)
		assert.Equal(t, ObjectID(1), got[0][0], "State copy should be unchanged.")

		got[1][0] = 42
		again, _ := Get(state, KeyRankingA)
		assert.Equal(t, ObjectID(3), again[1][0], "Retrieved copies must be independent.")
	})

	t.Run("relation with unexported fields", func(t *testing.T) {
		rel := NewRelation(3)
		rel.Set(0, 1)
		state := With(NewState(), KeyConsensusRelation, rel)
		rel.Set(2, 2)

		got, ok := Get(state, KeyConsensusRelation)
		require.True(t, ok)
		require.NotNil(t, got)
		assert.Equal(t, 3, got.Size())
		assert.True(t, got.Get(0, 1))
		assert.False(t, got.Get(2, 2), "Later writes to the original must not leak.")
		assert.NotSame(t, rel, got)
	})

	t.Run("nil relation", func(t *testing.T) {
		var rel *Relation
		state := With(NewState(), KeyConsensusRelation, rel)
		got, ok := Get(state, KeyConsensusRelation)
		assert.True(t, ok)
		assert.Nil(t, got)
	})

	t.Run("nil slice stays nil", func(t *testing.T) {
		state := With(NewState(), KeyKernel, nil)
		got, ok := Get(state, KeyKernel)
		assert.True(t, ok)
		assert.Nil(t, got)
	})
}

func TestState_String(t *testing.T) {
	state := With(NewState(), KeyKernel, []Pair{})
	assert.Equal(t, "State[kernel]", state.String())
}

func TestState_ConcurrentAccess(t *testing.T) {
	base := With(NewState(), KeyRankingA, ClusterRanking{{1}, {2}, {3}})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			derived := base.WithMultiple(map[string]any{fmt.Sprintf("worker.%d", i): i})
			got, ok := Get(derived, KeyRankingA)
			assert.True(t, ok)
			assert.Len(t, got, 3)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []string{"ranking.a"}, base.Keys(), "Base state must stay untouched.")
}

func TestState_ExecutionContext(t *testing.T) {
	_, ok := NewState().GetExecutionContext()
	assert.False(t, ok)

	state := NewState().WithExecutionContext(ExecutionContext{
		WorkflowID:  "default",
		ExecutionID: "exec-1",
	})

	ctx, ok := state.GetExecutionContext()
	require.True(t, ok)
	assert.Equal(t, "default", ctx.WorkflowID)
	assert.Equal(t, "exec-1", ctx.ExecutionID)
}

func TestSideKeys(t *testing.T) {
	key, err := RankingKey(SideA)
	require.NoError(t, err)
	assert.Equal(t, KeyRankingA, key)

	key, err = RankingKey(SideB)
	require.NoError(t, err)
	assert.Equal(t, KeyRankingB, key)

	pkey, err := PrecedenceKey(SideB)
	require.NoError(t, err)
	assert.Equal(t, KeyPrecedenceB, pkey)

	_, err = RankingKey("c")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = PrecedenceKey("")
	assert.ErrorIs(t, err, ErrInvalidState)
}
