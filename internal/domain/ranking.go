package domain

import (
	"encoding/json"
	"fmt"
	"slices"
)

// ObjectID identifies one ranked object. Identifiers are 1-based and need
// not be contiguous.
type ObjectID int

// Cluster is one level of a cluster-ranking. A single member is a bare
// object; several members are mutually tied.
type Cluster []ObjectID

// IsSingleton reports whether the cluster holds exactly one object.
func (c Cluster) IsSingleton() bool { return len(c) == 1 }

// MarshalJSON renders singletons as a bare number and tie groups as an
// array, mirroring the exchange format of cluster-rankings.
func (c Cluster) MarshalJSON() ([]byte, error) {
	if c.IsSingleton() {
		return json.Marshal(int(c[0]))
	}
	ids := make([]int, len(c))
	for i, id := range c {
		ids[i] = int(id)
	}
	return json.Marshal(ids)
}

// ClusterRanking is an ordered sequence of levels; earlier levels rank
// strictly higher, members of one level are indifferent to each other.
// A nil or empty ranking mentions no objects.
type ClusterRanking []Cluster

// Objects returns every object mentioned by the ranking in level order.
func (r ClusterRanking) Objects() []ObjectID {
	var out []ObjectID
	for _, c := range r {
		out = append(out, c...)
	}
	return out
}

// Levels maps every mentioned object to the zero-based index of its level.
func (r ClusterRanking) Levels() map[ObjectID]int {
	levels := make(map[ObjectID]int)
	for idx, c := range r {
		for _, id := range c {
			levels[id] = idx
		}
	}
	return levels
}

// Contains reports whether the ranking mentions id.
func (r ClusterRanking) Contains(id ObjectID) bool {
	for _, c := range r {
		if slices.Contains(c, id) {
			return true
		}
	}
	return false
}

// Validate checks that every level is non-empty, every identifier is
// positive, and no object appears twice. The returned error is a
// *RankingError whose Position is the offending level.
func (r ClusterRanking) Validate() error {
	seen := make(map[ObjectID]int)
	for pos, c := range r {
		if len(c) == 0 {
			return NewRankingError("", pos, fmt.Errorf("%w: empty tie group", ErrMalformedRanking))
		}
		for _, id := range c {
			if id <= 0 {
				return NewRankingError("", pos, fmt.Errorf("%w: %d", ErrInvalidObjectID, id))
			}
			if prev, dup := seen[id]; dup {
				return NewRankingError("", pos, fmt.Errorf("%w: %d already at level %d", ErrDuplicateObject, id, prev))
			}
			seen[id] = pos
		}
	}
	return nil
}
