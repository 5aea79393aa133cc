package service

import (
	"context"
	"errors"

	"github.com/yndnr/sightingdb-go/internal/core/domain"
	"github.com/yndnr/sightingdb-go/internal/telemetry/logger"
	"github.com/yndnr/sightingdb-go/internal/telemetry/metric"
)

// SightingStore is the engine surface used for client traffic.
type SightingStore interface {
	Write(ctx context.Context, ns string, value []byte, ts int64) error
	Read(ctx context.Context, ns string, value []byte, opts domain.ReadOptions) (*domain.Stats, error)
	ReadNamespace(ctx context.Context, ns string, opts domain.ReadOptions) ([]domain.Stats, error)
	Delete(ctx context.Context, ns string) (bool, error)
}

// SightingMetrics records operation outcomes.
type SightingMetrics interface {
	RecordWrite(result string)
	RecordRead(result string)
	RecordDelete()
}

// SightingConfig configures the SightingService.
type SightingConfig struct {
	Logger  logger.Logger
	Metrics SightingMetrics
}

// SightingService authorizes client operations and forwards them to the
// engine. Every call is one ACL check followed by one engine operation.
type SightingService struct {
	store   SightingStore
	acl     *ACLService
	logger  logger.Logger
	metrics SightingMetrics
}

// NewSightingService creates a SightingService.
func NewSightingService(store SightingStore, acl *ACLService, cfg SightingConfig) *SightingService {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	return &SightingService{
		store:   store,
		acl:     acl,
		logger:  cfg.Logger.With("component", "sighting"),
		metrics: cfg.Metrics,
	}
}

// WriteItem is one sighting of a bulk write.
type WriteItem struct {
	Namespace string
	Value     []byte
	Timestamp int64
}

// ReadItem is one lookup of a bulk read.
type ReadItem struct {
	Namespace string
	Value     []byte
	Options   domain.ReadOptions
}

// ReadResult is the outcome of one bulk read item. Exactly one of Stats
// and Err is set.
type ReadResult struct {
	Stats *domain.Stats
	Err   error
}

// Write records one sighting.
func (s *SightingService) Write(ctx context.Context, apiKey, ns string, value []byte, ts int64) error {
	if err := s.acl.Check(ctx, apiKey, domain.ModeWrite, ns); err != nil {
		s.recordWrite(err)
		return err
	}
	err := s.store.Write(ctx, ns, value, ts)
	s.recordWrite(err)
	return err
}

// Read returns the statistics of one value.
func (s *SightingService) Read(ctx context.Context, apiKey, ns string, value []byte, opts domain.ReadOptions) (*domain.Stats, error) {
	if err := s.acl.Check(ctx, apiKey, domain.ModeRead, ns); err != nil {
		s.recordRead(err)
		return nil, err
	}
	st, err := s.store.Read(ctx, ns, value, opts)
	s.recordRead(err)
	return st, err
}

// ReadNamespace lists every value of ns.
func (s *SightingService) ReadNamespace(ctx context.Context, apiKey, ns string, opts domain.ReadOptions) ([]domain.Stats, error) {
	if err := s.acl.Check(ctx, apiKey, domain.ModeRead, ns); err != nil {
		s.recordRead(err)
		return nil, err
	}
	out, err := s.store.ReadNamespace(ctx, ns, opts)
	s.recordRead(err)
	return out, err
}

// Delete removes ns. Deleting requires the write grant. Deleting a key
// binding revokes the key, grants included, so that binding it again
// starts without access.
func (s *SightingService) Delete(ctx context.Context, apiKey, ns string) (bool, error) {
	if err := s.acl.Check(ctx, apiKey, domain.ModeWrite, ns); err != nil {
		return false, err
	}
	var deleted bool
	var err error
	if key, ok := domain.ACLBindingKey(ns); ok {
		deleted, err = s.acl.Revoke(ctx, key)
	} else {
		deleted, err = s.store.Delete(ctx, ns)
	}
	if err == nil && deleted {
		if s.metrics != nil {
			s.metrics.RecordDelete()
		}
		s.logger.Info("namespace deleted", "namespace", ns)
	}
	return deleted, err
}

// BulkWrite writes each item independently and returns one error slot
// per item. A failed item does not undo or stop the others.
func (s *SightingService) BulkWrite(ctx context.Context, apiKey string, items []WriteItem) []error {
	errs := make([]error, len(items))
	for i, item := range items {
		errs[i] = s.Write(ctx, apiKey, item.Namespace, item.Value, item.Timestamp)
	}
	return errs
}

// BulkRead reads each item independently.
func (s *SightingService) BulkRead(ctx context.Context, apiKey string, items []ReadItem) []ReadResult {
	out := make([]ReadResult, len(items))
	for i, item := range items {
		st, err := s.Read(ctx, apiKey, item.Namespace, item.Value, item.Options)
		out[i] = ReadResult{Stats: st, Err: err}
	}
	return out
}

func (s *SightingService) recordWrite(err error) {
	if s.metrics != nil {
		s.metrics.RecordWrite(resultOf(err))
	}
}

func (s *SightingService) recordRead(err error) {
	if s.metrics != nil {
		s.metrics.RecordRead(resultOf(err))
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metric.ResultOK
	case errors.Is(err, domain.ErrNotFound):
		return metric.ResultNotFound
	case errors.Is(err, domain.ErrPermissionDenied),
		errors.Is(err, domain.ErrAPIKeyMissing),
		errors.Is(err, domain.ErrAPIKeyNotFound):
		return metric.ResultDenied
	default:
		return metric.ResultError
	}
}
