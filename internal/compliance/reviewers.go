package compliance

import (
	"sync"

	"github.com/meridianfs/onboard/pkg/schema"
)

// Scoring weights for reviewer selection.
const (
	weightQuality    = 0.4
	weightTimeliness = 0.3
	weightCapacity   = 0.3
)

// SelectionCriteria narrows the candidate pool beyond role matching.
type SelectionCriteria struct {
	Jurisdiction   string
	Specialization string
}

// ReviewerPool holds the reviewer roster and hands out assignments.
// Selection and the currentReviews increment happen under one lock, so two
// concurrent assignments cannot both land on a reviewer's last capacity slot.
type ReviewerPool struct {
	mu        sync.Mutex
	reviewers []*Reviewer
}

// NewReviewerPool creates a pool over the given roster.
func NewReviewerPool(reviewers []*Reviewer) *ReviewerPool {
	return &ReviewerPool{reviewers: reviewers}
}

// DefaultReviewers is a development roster covering every role the step
// templates require. Production deployments load their roster from the
// compliance directory instead.
func DefaultReviewers() []*Reviewer {
	mk := func(id, name string, role ReviewerRole, quality, timeliness float64) *Reviewer {
		return &Reviewer{
			ID:              id,
			Name:            name,
			Role:            role,
			Availability:    AvailabilityAvailable,
			MaxCapacity:     10,
			QualityScore:    quality,
			TimelinessScore: timeliness,
			Jurisdictions:   []string{"US", "CA", "GB"},
		}
	}
	return []*Reviewer{
		mk("rev-kyc-1", "KYC Analyst 1", RoleKYCAnalyst, 88, 92),
		mk("rev-kyc-2", "KYC Analyst 2", RoleKYCAnalyst, 82, 85),
		mk("rev-aml-1", "AML Officer 1", RoleAMLOfficer, 90, 84),
		mk("rev-aml-2", "AML Officer 2", RoleAMLOfficer, 86, 88),
		mk("rev-risk-1", "Risk Analyst 1", RoleRiskAnalyst, 85, 90),
		mk("rev-sco-1", "Senior Compliance Officer 1", RoleSeniorCompliance, 93, 87),
		mk("rev-mgr-1", "Compliance Manager 1", RoleComplianceManager, 95, 90),
	}
}

// Add appends a reviewer to the roster.
func (p *ReviewerPool) Add(r *Reviewer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reviewers = append(p.reviewers, r)
}

// Get returns a reviewer by id, or nil.
func (p *ReviewerPool) Get(id string) *Reviewer {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.reviewers {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Assign picks the best-available reviewer for a role and increments their
// review count immediately. Candidates must match the role exactly, be
// available, have spare capacity, and satisfy any jurisdiction or
// specialization criteria. Among candidates the highest weighted score wins;
// on a tie the earliest roster entry is kept.
func (p *ReviewerPool) Assign(role ReviewerRole, criteria SelectionCriteria) (*Reviewer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *Reviewer
	var bestScore float64
	for _, r := range p.reviewers {
		if !p.eligible(r, role, criteria) {
			continue
		}
		score := Score(r)
		if best == nil || score > bestScore {
			best = r
			bestScore = score
		}
	}
	if best == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"no available reviewer for role %s", role)
	}

	best.CurrentReviews++
	return best, nil
}

// Release returns one capacity slot to a reviewer.
func (p *ReviewerPool) Release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.reviewers {
		if r.ID == id && r.CurrentReviews > 0 {
			r.CurrentReviews--
			return
		}
	}
}

func (p *ReviewerPool) eligible(r *Reviewer, role ReviewerRole, criteria SelectionCriteria) bool {
	if r.Role != role {
		return false
	}
	if r.Availability != AvailabilityAvailable {
		return false
	}
	if r.CurrentReviews >= r.MaxCapacity {
		return false
	}
	if criteria.Jurisdiction != "" && !containsString(r.Jurisdictions, criteria.Jurisdiction) {
		return false
	}
	if criteria.Specialization != "" && !containsString(r.Specializations, criteria.Specialization) {
		return false
	}
	return true
}

// Score is the reviewer selection heuristic:
// 0.4*quality + 0.3*timeliness + 0.3*remainingCapacityPercentage.
func Score(r *Reviewer) float64 {
	return weightQuality*r.QualityScore +
		weightTimeliness*r.TimelinessScore +
		weightCapacity*r.RemainingCapacityPct()
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
