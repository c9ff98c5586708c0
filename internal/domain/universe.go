package domain

import "slices"

// Universe is the ascending union of identifiers seen in a set of
// rankings. Index i of every Relation built over the universe refers to
// IDs[i].
type Universe struct {
	// IDs holds the distinct identifiers in ascending order.
	IDs []ObjectID
}

// NewUniverse collects the identifiers mentioned by any of the rankings.
func NewUniverse(rankings ...ClusterRanking) Universe {
	var ids []ObjectID
	for _, r := range rankings {
		ids = append(ids, r.Objects()...)
	}
	slices.Sort(ids)
	return Universe{IDs: slices.Compact(ids)}
}

// Size returns the number of objects in the universe.
func (u Universe) Size() int { return len(u.IDs) }

// IsEmpty reports whether the universe has no objects.
func (u Universe) IsEmpty() bool { return len(u.IDs) == 0 }

// Index returns the matrix index of id.
func (u Universe) Index(id ObjectID) (int, bool) {
	return slices.BinarySearch(u.IDs, id)
}

// ID returns the identifier at matrix index i.
func (u Universe) ID(i int) ObjectID { return u.IDs[i] }

// Missing returns the identifiers of u that r does not mention.
func (u Universe) Missing(r ClusterRanking) []ObjectID {
	levels := r.Levels()
	var out []ObjectID
	for _, id := range u.IDs {
		if _, ok := levels[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
