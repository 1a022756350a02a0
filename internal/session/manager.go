// Package session owns clinical sessions: one patient workflow in progress,
// holding its observation, findings, decision-tree walk and prescription draft.
// Every operation on a session holds that session's lock for its duration, so
// the engine components inside never see two writers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/fertility-cds-server/internal/domain"
	"github.com/fertility-cds-server/internal/repository"
	"github.com/fertility-cds-server/internal/service"
)

// DraftCache persists open drafts so a session can be resumed after eviction.
type DraftCache interface {
	SaveDraft(ctx context.Context, draft domain.DraftSnapshot) error
	LoadDraft(ctx context.Context, sessionID string) (*domain.DraftSnapshot, bool, error)
	DeleteDraft(ctx context.Context, sessionID string) error
}

// LineUpdate changes any subset of a line's editable fields.
type LineUpdate struct {
	Dosage       *string `json:"dosage,omitempty"`
	Quantity     *int    `json:"quantity,omitempty"`
	Instructions *string `json:"instructions,omitempty"`
}

// View is a consistent copy of a session's state taken under its lock.
type View struct {
	ID           string                `json:"id"`
	PatientRef   string                `json:"patientRef,omitempty"`
	Observation  domain.Observation    `json:"observation"`
	Findings     domain.FindingSet     `json:"findings"`
	BMI          *float64              `json:"bmi,omitempty"`
	BMIBand      domain.BMIBand        `json:"bmiBand,omitempty"`
	Navigator    domain.NavigatorState `json:"navigator"`
	CurrentNode  domain.DecisionNode   `json:"currentNode"`
	Prescription domain.Prescription   `json:"prescription"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

type session struct {
	mu          sync.Mutex
	id          string
	patientRef  string
	observation domain.Observation
	findings    domain.FindingSet
	state       domain.NavigatorState
	composer    *service.Composer
	createdAt   time.Time
	updatedAt   time.Time

	// closed is set under mu once the session is finalized or discarded.
	closed bool
}

// Manager keeps sessions in a bounded table that expires idle entries.
type Manager struct {
	engine   *service.Engine
	store    repository.Store
	drafts   DraftCache
	sessions *expirable.LRU[string, *session]
	logger   *logrus.Logger
}

// NewManager creates a session manager. drafts may be nil.
func NewManager(engine *service.Engine, store repository.Store, drafts DraftCache, config domain.SessionConfig, logger *logrus.Logger) *Manager {
	size := config.MaxSessions
	if size <= 0 {
		size = 1000
	}
	ttl := config.TTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}

	m := &Manager{
		engine: engine,
		store:  store,
		drafts: drafts,
		logger: logger,
	}
	m.sessions = expirable.NewLRU[string, *session](size, func(id string, _ *session) {
		m.logger.WithField("session_id", id).Debug("Session evicted from memory")
	}, ttl)

	return m
}

// Create opens a new session positioned at the start of the decision tree.
func (m *Manager) Create(ctx context.Context, patientRef string) (*View, error) {
	now := time.Now().UTC()
	s := &session{
		id:         uuid.NewString(),
		patientRef: patientRef,
		findings:   domain.NewFindingSet(),
		state:      m.engine.Navigator.Start(),
		composer:   service.NewComposer(),
		createdAt:  now,
		updatedAt:  now,
	}
	m.sessions.Add(s.id, s)

	m.logger.WithFields(logrus.Fields{
		"session_id": s.id,
		"protocol":   m.engine.Protocol,
	}).Info("Session created")

	s.mu.Lock()
	defer s.mu.Unlock()
	m.saveDraft(ctx, s)
	return m.view(s), nil
}

// Get returns the current view of a session.
func (m *Manager) Get(ctx context.Context, id string) (*View, error) {
	return m.read(ctx, id, func(*session) error { return nil })
}

// Len reports how many sessions are held in memory.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// SetObservation replaces the observation and re-classifies it.
func (m *Manager) SetObservation(ctx context.Context, id string, obs domain.Observation) (*View, error) {
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	return m.mutate(ctx, id, false, func(s *session) error {
		s.observation = obs
		s.findings = m.engine.Classifier.Classify(obs)
		return nil
	})
}

// Advance follows an option of the current decision node.
func (m *Manager) Advance(ctx context.Context, id string, optionIndex int) (*View, error) {
	return m.mutate(ctx, id, false, func(s *session) error {
		next, err := m.engine.Navigator.Advance(s.state, optionIndex)
		if err != nil {
			return err
		}
		s.state = next
		return nil
	})
}

// AdvanceByLabel follows the option with the given label.
func (m *Manager) AdvanceByLabel(ctx context.Context, id, label string) (*View, error) {
	return m.mutate(ctx, id, false, func(s *session) error {
		next, err := m.engine.Navigator.AdvanceByLabel(s.state, label)
		if err != nil {
			return err
		}
		s.state = next
		return nil
	})
}

// Reset restarts the decision-tree walk. The draft is kept.
func (m *Manager) Reset(ctx context.Context, id string) (*View, error) {
	return m.mutate(ctx, id, false, func(s *session) error {
		s.state = m.engine.Navigator.Reset(s.state)
		return nil
	})
}

// Breadcrumb resolves the session's decision history to nodes.
func (m *Manager) Breadcrumb(ctx context.Context, id string) ([]domain.DecisionNode, error) {
	var nodes []domain.DecisionNode
	_, err := m.read(ctx, id, func(s *session) error {
		var err error
		nodes, err = m.engine.Navigator.Breadcrumb(s.state)
		return err
	})
	return nodes, err
}

// AddRecommendation appends every item recommended for key. An empty key
// means the recommendation of the current terminal node.
func (m *Manager) AddRecommendation(ctx context.Context, id, key string) (*View, error) {
	return m.mutate(ctx, id, true, func(s *session) error {
		if key == "" {
			node, err := m.engine.Navigator.Current(s.state)
			if err != nil {
				return err
			}
			if !node.IsTerminal() || node.RecommendationKey == "" {
				return domain.NewValidationError("key", "current node carries no recommendation", node.ID)
			}
			key = node.RecommendationKey
		}

		items := m.engine.Recommender.Recommend(key)
		if len(items) == 0 {
			return fmt.Errorf("recommendation %q: %w", key, domain.ErrNotFound)
		}
		for _, item := range items {
			s.composer.AddFromRecommendation(item)
		}
		return nil
	})
}

// AddFindingRecommendations appends the recommendations of every current finding.
func (m *Manager) AddFindingRecommendations(ctx context.Context, id string) (*View, error) {
	return m.mutate(ctx, id, true, func(s *session) error {
		for _, item := range m.engine.Recommender.RecommendForFindings(s.findings) {
			s.composer.AddFromRecommendation(item)
		}
		return nil
	})
}

// AddFromCatalog appends a catalog medicine by exact trade name.
func (m *Manager) AddFromCatalog(ctx context.Context, id, tradeName string) (*View, error) {
	entry, ok := service.FindCatalogEntry(m.engine.Catalog, tradeName)
	if !ok {
		return nil, fmt.Errorf("catalog entry %q: %w", tradeName, domain.ErrNotFound)
	}
	return m.mutate(ctx, id, true, func(s *session) error {
		s.composer.AddFromCatalog(entry)
		return nil
	})
}

// UpdateLine applies a line update. Either every field changes or none does.
func (m *Manager) UpdateLine(ctx context.Context, id string, index int, update LineUpdate) (*View, error) {
	return m.mutate(ctx, id, true, func(s *session) error {
		if update.Quantity != nil {
			if err := s.composer.UpdateQuantity(index, *update.Quantity); err != nil {
				return err
			}
		}
		if update.Dosage != nil {
			if err := s.composer.UpdateDosage(index, *update.Dosage); err != nil {
				return err
			}
		}
		if update.Instructions != nil {
			if err := s.composer.UpdateInstructions(index, *update.Instructions); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveLine deletes a line from the draft.
func (m *Manager) RemoveLine(ctx context.Context, id string, index int) (*View, error) {
	return m.mutate(ctx, id, true, func(s *session) error {
		return s.composer.Remove(index)
	})
}

// SetNotes replaces the draft's notes.
func (m *Manager) SetNotes(ctx context.Context, id, notes string) (*View, error) {
	return m.mutate(ctx, id, true, func(s *session) error {
		s.composer.SetNotes(notes)
		return nil
	})
}

// Summary derives totals and BMI for the draft.
func (m *Manager) Summary(ctx context.Context, id string) (domain.PrescriptionSummary, error) {
	var summary domain.PrescriptionSummary
	_, err := m.read(ctx, id, func(s *session) error {
		summary = s.composer.Summarize(s.observation, m.engine.Catalog)
		return nil
	})
	return summary, err
}

// Finalize persists the draft as a prescription record and closes the session.
func (m *Manager) Finalize(ctx context.Context, id string) (*domain.PrescriptionRecord, error) {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	prescription := s.composer.Snapshot()
	if len(prescription.Lines) == 0 {
		return nil, domain.NewValidationError("prescription", "cannot finalize an empty prescription", 0)
	}

	bmi, _ := service.ObservationBMI(s.observation)
	record := &domain.PrescriptionRecord{
		ID:           uuid.NewString(),
		SessionID:    s.id,
		PatientRef:   s.patientRef,
		Protocol:     m.engine.Protocol,
		Prescription: prescription,
		Findings:     s.findings.Sorted(),
		DecisionPath: append([]string(nil), s.state.History...),
		BMI:          bmi,
		CreatedAt:    time.Now().UTC(),
	}

	if err := m.store.Save(ctx, record); err != nil {
		m.logger.WithFields(logrus.Fields{
			"session_id": s.id,
			"error":      err,
		}).Error("Failed to persist prescription")
		return nil, fmt.Errorf("finalizing session %s: %w", s.id, err)
	}

	s.closed = true
	m.sessions.Remove(s.id)
	m.deleteDraft(ctx, s.id)

	m.logger.WithFields(logrus.Fields{
		"session_id":      s.id,
		"prescription_id": record.ID,
		"lines":           len(record.Prescription.Lines),
	}).Info("Prescription finalized")

	return record, nil
}

// Discard drops a session and its draft without persisting anything.
func (m *Manager) Discard(ctx context.Context, id string) error {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	s.closed = true
	m.sessions.Remove(id)
	m.deleteDraft(ctx, id)

	m.logger.WithField("session_id", id).Info("Session discarded")
	return nil
}

// lookup finds a session in memory, falling back to the draft cache.
func (m *Manager) lookup(ctx context.Context, id string) (*session, error) {
	if s, ok := m.sessions.Get(id); ok {
		return s, nil
	}
	if m.drafts == nil {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}

	draft, found, err := m.drafts.LoadDraft(ctx, id)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"session_id": id,
			"error":      err,
		}).Warn("Failed to load session draft")
	}
	if !found {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}

	s := &session{
		id:          draft.SessionID,
		patientRef:  draft.PatientRef,
		observation: draft.Observation,
		findings:    m.engine.Classifier.Classify(draft.Observation),
		state:       draft.Navigator,
		composer:    service.NewComposerFrom(draft.Prescription),
		createdAt:   draft.UpdatedAt,
		updatedAt:   draft.UpdatedAt,
	}
	if _, err := m.engine.Navigator.Current(s.state); err != nil {
		s.state = m.engine.Navigator.Start()
	}

	// Another caller may have restored it first.
	if existing, ok := m.sessions.Get(id); ok {
		return existing, nil
	}
	m.sessions.Add(id, s)

	m.logger.WithField("session_id", id).Info("Session restored from draft cache")
	return s, nil
}

// acquire returns the session locked. A session closed while the caller
// waited for the lock is reported as not found.
func (m *Manager) acquire(ctx context.Context, id string) (*session, error) {
	s, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

func (m *Manager) read(ctx context.Context, id string, fn func(*session) error) (*View, error) {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	if err := fn(s); err != nil {
		return nil, err
	}
	return m.view(s), nil
}

// mutate runs fn under the session lock. When fn fails on a draft operation
// the draft is rolled back so no partial change survives.
func (m *Manager) mutate(ctx context.Context, id string, draftOp bool, fn func(*session) error) (*View, error) {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	var before domain.Prescription
	if draftOp {
		before = s.composer.Snapshot()
	}

	if err := fn(s); err != nil {
		if draftOp {
			s.composer = service.NewComposerFrom(before)
		}
		if !isCallerError(err) {
			m.logger.WithFields(logrus.Fields{
				"session_id": s.id,
				"error":      err,
			}).Error("Session operation failed")
		}
		return nil, err
	}

	s.updatedAt = time.Now().UTC()
	m.saveDraft(ctx, s)
	return m.view(s), nil
}

func (m *Manager) view(s *session) *View {
	findings := make(domain.FindingSet, len(s.findings))
	for code, f := range s.findings {
		findings[code] = f
	}
	bmi, band := service.ObservationBMI(s.observation)
	node, _ := m.engine.Navigator.Current(s.state)

	return &View{
		ID:           s.id,
		PatientRef:   s.patientRef,
		Observation:  s.observation,
		Findings:     findings,
		BMI:          bmi,
		BMIBand:      band,
		Navigator:    domain.NavigatorState{CurrentID: s.state.CurrentID, History: append([]string(nil), s.state.History...)},
		CurrentNode:  node,
		Prescription: s.composer.Snapshot(),
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
}

// saveDraft is best effort: the in-memory session stays authoritative.
func (m *Manager) saveDraft(ctx context.Context, s *session) {
	if m.drafts == nil {
		return
	}
	draft := domain.DraftSnapshot{
		SessionID:    s.id,
		PatientRef:   s.patientRef,
		Observation:  s.observation,
		Navigator:    s.state,
		Prescription: s.composer.Snapshot(),
		UpdatedAt:    s.updatedAt,
	}
	if err := m.drafts.SaveDraft(ctx, draft); err != nil {
		m.logger.WithFields(logrus.Fields{
			"session_id": s.id,
			"error":      err,
		}).Warn("Failed to cache session draft")
	}
}

func (m *Manager) deleteDraft(ctx context.Context, id string) {
	if m.drafts == nil {
		return
	}
	if err := m.drafts.DeleteDraft(ctx, id); err != nil {
		m.logger.WithFields(logrus.Fields{
			"session_id": id,
			"error":      err,
		}).Warn("Failed to delete session draft")
	}
}

func isCallerError(err error) bool {
	var validationErr *domain.ValidationError
	return errors.As(err, &validationErr) ||
		errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrUnknownNode) ||
		errors.Is(err, domain.ErrIndexOutOfRange) ||
		errors.Is(err, domain.ErrInvalidQuantity) ||
		errors.Is(err, domain.ErrNotFound)
}
