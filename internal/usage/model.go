package usage

import "time"

// Phase names the LLM step a usage record belongs to.
type Phase string

const (
	PhaseClassification Phase = "classification"
	PhaseDrafting       Phase = "drafting"
)

// Record is one append-only LLM usage entry.
type Record struct {
	ID            string    `json:"id"`
	RepositoryID  string    `json:"repositoryId"`
	TokensIn      int64     `json:"tokensIn"`
	TokensOut     int64     `json:"tokensOut"`
	EstimatedCost float64   `json:"estimatedCost"`
	Phase         Phase     `json:"phase"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Entry is the input to Service.Record.
type Entry struct {
	RepositoryID string
	Phase        Phase
	Provider     string
	Model        string
	TokensIn     int64
	TokensOut    int64
}

// PhaseTotals aggregates records of one phase.
type PhaseTotals struct {
	Calls         int     `json:"calls"`
	TokensIn      int64   `json:"tokensIn"`
	TokensOut     int64   `json:"tokensOut"`
	EstimatedCost float64 `json:"estimatedCost"`
}

// Summary aggregates usage for one repository.
type Summary struct {
	RepositoryID string                `json:"repositoryId"`
	Total        PhaseTotals           `json:"total"`
	ByPhase      map[Phase]PhaseTotals `json:"byPhase"`
}

func (s *Summary) add(r Record) {
	if s.ByPhase == nil {
		s.ByPhase = make(map[Phase]PhaseTotals)
	}
	p := s.ByPhase[r.Phase]
	p.Calls++
	p.TokensIn += r.TokensIn
	p.TokensOut += r.TokensOut
	p.EstimatedCost += r.EstimatedCost
	s.ByPhase[r.Phase] = p

	s.Total.Calls++
	s.Total.TokensIn += r.TokensIn
	s.Total.TokensOut += r.TokensOut
	s.Total.EstimatedCost += r.EstimatedCost
}
