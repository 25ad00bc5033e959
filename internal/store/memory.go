package store

import (
	"sort"
	"sync"
	"time"

	"github.com/salesloop/salesloop/internal/models"
	"github.com/salesloop/salesloop/internal/util"
)

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps all records in process memory guarded by one mutex.
type InMemoryStore struct {
	mu              sync.Mutex
	cadences        map[string]models.Cadence
	subjects        map[string]models.Subject // keyed by kind + "/" + id
	enrollments     map[string]models.CadenceEnrollment
	classifications map[string]models.ReplyClassification
	blocklist       []models.BlocklistEntry
	tasks           []models.ManualTask
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		cadences:        make(map[string]models.Cadence),
		subjects:        make(map[string]models.Subject),
		enrollments:     make(map[string]models.CadenceEnrollment),
		classifications: make(map[string]models.ReplyClassification),
	}
}

func subjectKey(kind models.SubjectKind, id string) string {
	return string(kind) + "/" + id
}

func copyCadence(c models.Cadence) models.Cadence {
	out := c
	out.Steps = append([]models.CadenceStep(nil), c.Steps...)
	return out
}

func (s *InMemoryStore) CreateCadence(c *models.Cadence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = util.GenerateCadenceID()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.cadences[c.ID] = copyCadence(*c)
	return nil
}

func (s *InMemoryStore) GetCadence(id string) (*models.Cadence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cadences[id]
	if !ok {
		return nil, nil
	}
	out := copyCadence(c)
	return &out, nil
}

func (s *InMemoryStore) ListCadences() ([]models.Cadence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Cadence, 0, len(s.cadences))
	for _, c := range s.cadences {
		out = append(out, copyCadence(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) UpdateCadence(c *models.Cadence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.cadences[c.ID]
	if !ok {
		return models.ErrCadenceNotFound
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now()
	s.cadences[c.ID] = copyCadence(*c)
	return nil
}

func (s *InMemoryStore) DeleteCadence(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cadences, id)
	return nil
}

func (s *InMemoryStore) ReconcileCadenceCounters() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.cadences {
		var enrolled, completed, replied int
		for _, e := range s.enrollments {
			if e.CadenceID != id {
				continue
			}
			enrolled++
			switch e.Status {
			case models.EnrollmentStatusCompleted:
				completed++
			case models.EnrollmentStatusReplied:
				replied++
			}
		}
		c.TotalEnrolled = enrolled
		c.TotalCompleted = completed
		c.TotalReplied = replied
		s.cadences[id] = c
	}
	return nil
}

func (s *InMemoryStore) UpsertSubject(subj models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.subjects[subjectKey(subj.Kind, subj.ID)]; ok {
		subj.CreatedAt = existing.CreatedAt
	} else {
		subj.CreatedAt = now
	}
	subj.UpdatedAt = now
	s.subjects[subjectKey(subj.Kind, subj.ID)] = subj
	return nil
}

func (s *InMemoryStore) GetSubject(kind models.SubjectKind, id string) (*models.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subj, ok := s.subjects[subjectKey(kind, id)]
	if !ok {
		return nil, nil
	}
	return &subj, nil
}

func (s *InMemoryStore) CreateEnrollment(e *models.CadenceEnrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.enrollments {
		if existing.CadenceID == e.CadenceID && !existing.Status.Terminal() &&
			existing.LeadID == e.LeadID && existing.ContactID == e.ContactID {
			return models.ErrAlreadyEnrolled
		}
	}
	if e.ID == "" {
		e.ID = util.GenerateEnrollmentID()
	}
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	s.enrollments[e.ID] = *e
	if c, ok := s.cadences[e.CadenceID]; ok {
		c.TotalEnrolled++
		s.cadences[e.CadenceID] = c
	}
	return nil
}

func (s *InMemoryStore) GetEnrollment(id string) (*models.CadenceEnrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *InMemoryStore) ListEnrollmentsByCadence(cadenceID string) ([]models.CadenceEnrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CadenceEnrollment
	for _, e := range s.enrollments {
		if e.CadenceID == cadenceID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) ClaimDueEnrollments(now time.Time, limit int) ([]models.CadenceEnrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []models.CadenceEnrollment
	for _, e := range s.enrollments {
		if e.Status == models.EnrollmentStatusActive && e.ClaimedAt == nil &&
			e.NextStepDue != nil && !e.NextStepDue.After(now) {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].NextStepDue.Before(*candidates[j].NextStepDue) })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	claimedAt := now
	for i := range candidates {
		candidates[i].ClaimedAt = &claimedAt
		s.enrollments[candidates[i].ID] = candidates[i]
	}
	return candidates, nil
}

func (s *InMemoryStore) ReleaseClaim(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[id]
	if !ok {
		return models.ErrEnrollmentNotFound
	}
	e.ClaimedAt = nil
	s.enrollments[id] = e
	return nil
}

func (s *InMemoryStore) RequeueStaleClaims(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.enrollments {
		if e.ClaimedAt != nil && e.ClaimedAt.Before(staleBefore) {
			e.ClaimedAt = nil
			s.enrollments[id] = e
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) UpdateEnrollmentCAS(e models.CadenceEnrollment, expected models.EnrollmentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.enrollments[e.ID]
	if !ok {
		return false, models.ErrEnrollmentNotFound
	}
	if stored.Status != expected {
		return false, nil
	}
	stored.Status = e.Status
	stored.CurrentStep = e.CurrentStep
	stored.RetryCount = e.RetryCount
	stored.LastStepAt = e.LastStepAt
	stored.NextStepDue = e.NextStepDue
	stored.PausedRemaining = e.PausedRemaining
	stored.ClaimedAt = nil
	stored.UpdatedAt = time.Now()
	s.enrollments[e.ID] = stored

	if expected != e.Status {
		if c, ok := s.cadences[stored.CadenceID]; ok {
			switch e.Status {
			case models.EnrollmentStatusCompleted:
				c.TotalCompleted++
				s.cadences[stored.CadenceID] = c
			case models.EnrollmentStatusReplied:
				c.TotalReplied++
				s.cadences[stored.CadenceID] = c
			}
		}
	}
	return true, nil
}

func (s *InMemoryStore) OverviewStats() (*models.OverviewStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &models.OverviewStats{}
	for _, c := range s.cadences {
		if c.Status == models.CadenceStatusActive {
			stats.ActiveCadences++
		}
	}
	for _, e := range s.enrollments {
		stats.TotalEnrolled++
		switch e.Status {
		case models.EnrollmentStatusActive:
			stats.TotalActive++
		case models.EnrollmentStatusReplied:
			stats.TotalReplied++
		case models.EnrollmentStatusCompleted:
			stats.TotalCompleted++
		}
	}
	return stats, nil
}

func (s *InMemoryStore) AddReplyClassification(rc *models.ReplyClassification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rc.ID == "" {
		rc.ID = util.GenerateClassificationID()
	}
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = time.Now()
	}
	s.classifications[rc.ID] = *rc
	return nil
}

func (s *InMemoryStore) ListRecentClassifications(limit int) ([]models.ReplyClassification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ReplyClassification, 0, len(s.classifications))
	for _, rc := range s.classifications {
		out = append(out, rc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListUnprocessedClassifications(limit int) ([]models.ReplyClassification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ReplyClassification
	for _, rc := range s.classifications {
		if !rc.Processed {
			out = append(out, rc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) MarkClassificationProcessed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.classifications[id]
	if !ok {
		return nil
	}
	rc.Processed = true
	s.classifications[id] = rc
	return nil
}

func (s *InMemoryStore) AddBlocklistEntry(entry *models.BlocklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = util.GenerateBlocklistID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.blocklist = append(s.blocklist, *entry)
	return nil
}

func (s *InMemoryStore) IsBlocklisted(email, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.blocklist {
		if email != "" && entry.Email == email {
			return true, nil
		}
		if phone != "" && entry.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) ListBlocklist() ([]models.BlocklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.BlocklistEntry(nil), s.blocklist...), nil
}

func (s *InMemoryStore) AddManualTask(task *models.ManualTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == "" {
		task.ID = util.GenerateTaskID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	s.tasks = append(s.tasks, *task)
	return nil
}

func (s *InMemoryStore) ListManualTasksByCadence(cadenceID string) ([]models.ManualTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ManualTask
	for _, t := range s.tasks {
		if t.CadenceID == cadenceID {
			out = append(out, t)
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
