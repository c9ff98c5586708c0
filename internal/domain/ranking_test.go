package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterRanking_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ranking ClusterRanking
		wantErr error
		wantPos int
	}{
		{name: "empty ranking", ranking: ClusterRanking{}},
		{name: "nil ranking", ranking: nil},
		{name: "singletons and ties", ranking: ClusterRanking{{1}, {2, 3}, {4}}},
		{name: "non contiguous ids", ranking: ClusterRanking{{10}, {3, 700}}},
		{
			name:    "empty tie group",
			ranking: ClusterRanking{{1}, {}},
			wantErr: ErrMalformedRanking,
			wantPos: 1,
		},
		{
			name:    "zero identifier",
			ranking: ClusterRanking{{0}},
			wantErr: ErrInvalidObjectID,
			wantPos: 0,
		},
		{
			name:    "negative identifier in group",
			ranking: ClusterRanking{{1}, {2, -3}},
			wantErr: ErrInvalidObjectID,
			wantPos: 1,
		},
		{
			name:    "duplicate across levels",
			ranking: ClusterRanking{{1, 2}, {3}, {2}},
			wantErr: ErrDuplicateObject,
			wantPos: 2,
		},
		{
			name:    "duplicate within level",
			ranking: ClusterRanking{{4, 4}},
			wantErr: ErrDuplicateObject,
			wantPos: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ranking.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var rankErr *RankingError
			require.True(t, errors.As(err, &rankErr))
			assert.Equal(t, tt.wantPos, rankErr.Position)
		})
	}
}

func TestClusterRanking_Levels(t *testing.T) {
	r := ClusterRanking{{1}, {2, 3}, {4}}

	assert.Equal(t, map[ObjectID]int{1: 0, 2: 1, 3: 1, 4: 2}, r.Levels())
	assert.Equal(t, []ObjectID{1, 2, 3, 4}, r.Objects())
	assert.True(t, r.Contains(3))
	assert.False(t, r.Contains(5))
}

func TestCluster_MarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		ranking ClusterRanking
		want    string
	}{
		{name: "singletons are bare", ranking: ClusterRanking{{1}, {2}}, want: `[1,2]`},
		{name: "ties are arrays", ranking: ClusterRanking{{1}, {2, 3}}, want: `[1,[2,3]]`},
		{name: "empty ranking", ranking: ClusterRanking{}, want: `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.ranking)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestPair(t *testing.T) {
	assert.Equal(t, Pair{Lo: 2, Hi: 7}, NewPair(7, 2))
	assert.Equal(t, Pair{Lo: 2, Hi: 7}, NewPair(2, 7))

	data, err := json.Marshal([]Pair{NewPair(9, 8)})
	require.NoError(t, err)
	assert.JSONEq(t, `[[8,9]]`, string(data))
}

func TestUniverse(t *testing.T) {
	u := NewUniverse(ClusterRanking{{5}, {1, 3}}, ClusterRanking{{3}, {8}})

	assert.Equal(t, []ObjectID{1, 3, 5, 8}, u.IDs)
	assert.Equal(t, 4, u.Size())
	assert.False(t, u.IsEmpty())

	idx, ok := u.Index(5)
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
	assert.Equal(t, ObjectID(5), u.ID(idx))

	_, ok = u.Index(4)
	assert.False(t, ok)

	assert.Equal(t, []ObjectID{8}, u.Missing(ClusterRanking{{5}, {1, 3}}))
	assert.Empty(t, u.Missing(ClusterRanking{{1, 3, 5, 8}}))

	assert.True(t, NewUniverse(nil, ClusterRanking{}).IsEmpty())
}
