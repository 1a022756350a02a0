package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/fertility-cds-server/internal/domain"
)

// ErrStoreUnavailable is returned while the circuit breaker is open.
var ErrStoreUnavailable = errors.New("prescription store unavailable")

// ResilientStore guards a Store with a circuit breaker. Not-found and
// validation errors are caller mistakes and do not count as failures.
type ResilientStore struct {
	next    Store
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewResilientStore wraps next with a circuit breaker configured from config.
func NewResilientStore(next Store, config domain.BreakerConfig, logger *logrus.Logger) *ResilientStore {
	if config.MaxRequests == 0 {
		config.MaxRequests = 3
	}
	if config.Interval == 0 {
		config.Interval = 10 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.MinRequests == 0 {
		config.MinRequests = 5
	}
	if config.FailureRatio == 0 {
		config.FailureRatio = 0.6
	}

	settings := gobreaker.Settings{
		Name:        "PrescriptionStore",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var validationErr *domain.ValidationError
			return errors.Is(err, domain.ErrNotFound) || errors.As(err, &validationErr)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger == nil {
				return
			}
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &ResilientStore{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// State reports the breaker state.
func (s *ResilientStore) State() gobreaker.State {
	return s.breaker.State()
}

func (s *ResilientStore) execute(operation func() (interface{}, error)) (interface{}, error) {
	result, err := s.breaker.Execute(operation)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return result, err
}

// Save stores a record through the breaker.
func (s *ResilientStore) Save(ctx context.Context, record *domain.PrescriptionRecord) error {
	_, err := s.execute(func() (interface{}, error) {
		return nil, s.next.Save(ctx, record)
	})
	return err
}

// Get retrieves a record through the breaker.
func (s *ResilientStore) Get(ctx context.Context, id string) (*domain.PrescriptionRecord, error) {
	result, err := s.execute(func() (interface{}, error) {
		return s.next.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.PrescriptionRecord), nil
}

// ListBySession lists a session's records through the breaker.
func (s *ResilientStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.PrescriptionRecord, error) {
	result, err := s.execute(func() (interface{}, error) {
		return s.next.ListBySession(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*domain.PrescriptionRecord), nil
}

// List pages through records through the breaker.
func (s *ResilientStore) List(ctx context.Context, limit, offset int) ([]*domain.PrescriptionRecord, error) {
	result, err := s.execute(func() (interface{}, error) {
		return s.next.List(ctx, limit, offset)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*domain.PrescriptionRecord), nil
}

// Count counts records through the breaker.
func (s *ResilientStore) Count(ctx context.Context) (int64, error) {
	result, err := s.execute(func() (interface{}, error) {
		return s.next.Count(ctx)
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// Close closes the wrapped store.
func (s *ResilientStore) Close() error {
	return s.next.Close()
}

// CachedStore keeps recently read or written records in memory. Records are
// immutable once saved, so entries never go stale.
type CachedStore struct {
	next  Store
	cache *lru.Cache
}

// NewCachedStore wraps next with an LRU of the given size.
func NewCachedStore(next Store, size int) (*CachedStore, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create record cache: %w", err)
	}
	return &CachedStore{next: next, cache: cache}, nil
}

// Save stores the record and caches it.
func (s *CachedStore) Save(ctx context.Context, record *domain.PrescriptionRecord) error {
	if err := s.next.Save(ctx, record); err != nil {
		return err
	}
	s.cache.Add(record.ID, cloneRecord(record))
	return nil
}

// Get serves a record from memory when possible.
func (s *CachedStore) Get(ctx context.Context, id string) (*domain.PrescriptionRecord, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cloneRecord(cached.(*domain.PrescriptionRecord)), nil
	}

	record, err := s.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, cloneRecord(record))
	return record, nil
}

// ListBySession is not cached.
func (s *CachedStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.PrescriptionRecord, error) {
	return s.next.ListBySession(ctx, sessionID)
}

// List is not cached.
func (s *CachedStore) List(ctx context.Context, limit, offset int) ([]*domain.PrescriptionRecord, error) {
	return s.next.List(ctx, limit, offset)
}

// Count is not cached.
func (s *CachedStore) Count(ctx context.Context) (int64, error) {
	return s.next.Count(ctx)
}

// Close purges the cache and closes the wrapped store.
func (s *CachedStore) Close() error {
	s.cache.Purge()
	return s.next.Close()
}

func cloneRecord(r *domain.PrescriptionRecord) *domain.PrescriptionRecord {
	out := *r
	out.Prescription = r.Prescription.Clone()
	out.Findings = append([]domain.Finding(nil), r.Findings...)
	out.DecisionPath = append([]string(nil), r.DecisionPath...)
	if r.BMI != nil {
		bmi := *r.BMI
		out.BMI = &bmi
	}
	return &out
}
