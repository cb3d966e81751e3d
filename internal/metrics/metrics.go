// Package metrics counts what the recon store writes
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Entity labels
const (
	EntityComputer         = "computer"
	EntityCredential       = "credential"
	EntityGroup            = "group"
	EntityShare            = "share"
	EntityAdminRelation    = "admin_relation"
	EntityGroupRelation    = "group_relation"
	EntityLoggedInRelation = "loggedin_relation"
)

// Outcome labels
const (
	OutcomeInserted  = "inserted"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeSkipped   = "skipped"
	OutcomeDegraded  = "degraded"
)

// Recorder holds the store counters. A nil *Recorder records nothing.
type Recorder struct {
	records *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors on reg
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconstore_records_total",
				Help: "Total number of observations recorded, by entity and outcome.",
			},
			[]string{"entity", "outcome"},
		),
	}

	if err := reg.Register(r.records); err != nil {
		return nil, err
	}
	return r, nil
}

// Record counts one observation
func (r *Recorder) Record(entity, outcome string) {
	if r == nil {
		return
	}
	r.records.WithLabelValues(entity, outcome).Inc()
}

// Records exposes the counter vector, mainly for tests
func (r *Recorder) Records() *prometheus.CounterVec {
	return r.records
}
