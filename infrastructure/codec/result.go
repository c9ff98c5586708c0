package codec

import (
	"encoding/json"

	"github.com/ahrav/go-concord/internal/domain"
)

// Result is the exchange document for one reconciliation.
type Result struct {
	Kernel    []domain.Pair         `json:"kernel"`
	Consensus domain.ClusterRanking `json:"consensus"`
}

// Record is one line of batch output. Exactly one of Error or the result
// fields is set.
type Record struct {
	ID string `json:"id"`
	*Result
	Stats *domain.ReconciliationStats `json:"stats,omitempty"`
	Error string                      `json:"error,omitempty"`
}

// NewResult builds the exchange document for rec. Empty kernels and
// rankings are rendered as [] rather than null.
func NewResult(rec *domain.Reconciliation) Result {
	res := Result{Kernel: []domain.Pair{}, Consensus: domain.ClusterRanking{}}
	if rec == nil {
		return res
	}
	if rec.Kernel != nil {
		res.Kernel = rec.Kernel
	}
	if rec.Consensus != nil {
		res.Consensus = rec.Consensus
	}
	return res
}

// EncodeResult renders rec as {"kernel": [...], "consensus": [...]}.
func EncodeResult(rec *domain.Reconciliation) ([]byte, error) {
	return json.Marshal(NewResult(rec))
}

// EncodeRanking renders r in the document form DecodeRanking reads.
func EncodeRanking(r domain.ClusterRanking) ([]byte, error) {
	if r == nil {
		r = domain.ClusterRanking{}
	}
	return json.Marshal(r)
}

// NewRecord builds a batch output line for job id. A non-nil err takes
// precedence over rec.
func NewRecord(id string, rec *domain.Reconciliation, err error) Record {
	if err != nil {
		return Record{ID: id, Error: err.Error()}
	}
	res := NewResult(rec)
	r := Record{ID: id, Result: &res}
	if rec != nil {
		stats := rec.Stats
		r.Stats = &stats
	}
	return r
}

// EncodeRecord renders NewRecord(id, rec, err).
func EncodeRecord(id string, rec *domain.Reconciliation, err error) ([]byte, error) {
	return json.Marshal(NewRecord(id, rec, err))
}
