package domain

import (
	"encoding/json"
	"time"
)

// Pair is an unordered object pair reported with the smaller identifier
// first.
type Pair struct {
	// Lo is the smaller identifier.
	Lo ObjectID
	// Hi is the larger identifier.
	Hi ObjectID
}

// NewPair orders a and b so that Lo < Hi.
func NewPair(a, b ObjectID) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{Lo: a, Hi: b}
}

// MarshalJSON renders the pair as a two-element array.
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{int(p.Lo), int(p.Hi)})
}

// ReconciliationStats summarises the shape of one reconciliation.
type ReconciliationStats struct {
	// UniverseSize is the number of distinct objects across both inputs.
	UniverseSize int `json:"universe_size"`

	// KernelSize is the number of contradictory pairs.
	KernelSize int `json:"kernel_size"`

	// ClusterCount is the number of levels in the consensus ranking.
	ClusterCount int `json:"cluster_count"`

	// PartialObjects lists objects mentioned by only one of the inputs.
	// They were placed at the top level of the ranking that omits them.
	PartialObjects []ObjectID `json:"partial_objects,omitempty"`
}

// Reconciliation is the outcome of reconciling two cluster-rankings.
type Reconciliation struct {
	// ID uniquely identifies this reconciliation (a UUID).
	ID string `json:"id"`

	// Kernel lists the contradictory pairs in ascending order.
	Kernel []Pair `json:"kernel"`

	// Consensus is the ordered consensus cluster-ranking.
	Consensus ClusterRanking `json:"consensus"`

	// Stats describes the inputs and outputs.
	Stats ReconciliationStats `json:"stats"`

	// Timestamp records when this reconciliation was produced.
	Timestamp time.Time `json:"timestamp"`
}
