package service

import (
	"context"
	"errors"
	"strings"

	"github.com/yndnr/sightingdb-go/internal/core/domain"
	"github.com/yndnr/sightingdb-go/internal/telemetry/logger"
	"github.com/yndnr/sightingdb-go/pkg/token"
)

// ACLStore is the part of the storage engine the ACL is built on.
type ACLStore interface {
	Read(ctx context.Context, ns string, value []byte, opts domain.ReadOptions) (*domain.Stats, error)
	ReadNamespace(ctx context.Context, ns string, opts domain.ReadOptions) ([]domain.Stats, error)
	WriteAdmin(ctx context.Context, ns string, value []byte, ts int64) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	ListNamespaces(ctx context.Context, prefix string) ([]string, error)
}

// ACLConfig configures the ACLService.
type ACLConfig struct {
	// Authenticate enables key checks. When false every check passes.
	Authenticate bool

	Logger logger.Logger

	// Metrics receives denied checks. Optional.
	Metrics ACLMetrics
}

// ACLMetrics records authorization outcomes.
type ACLMetrics interface {
	RecordACLDenied(mode string)
}

// Grants lists the prefixes a key may read and write.
type Grants struct {
	Read  []string `json:"read"`
	Write []string `json:"write"`
}

// ACLService answers access questions from bindings stored in the data
// keyspace under domain.ACLKeyRoot. It keeps no copy of its own.
type ACLService struct {
	store        ACLStore
	authenticate bool
	logger       logger.Logger
	metrics      ACLMetrics
}

// NewACLService creates an ACLService.
func NewACLService(store ACLStore, cfg ACLConfig) *ACLService {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	s := &ACLService{
		store:        store,
		authenticate: cfg.Authenticate,
		logger:       cfg.Logger.With("component", "acl"),
		metrics:      cfg.Metrics,
	}
	if !s.authenticate {
		s.logger.Warn("AUTHENTICATION DISABLED: every request is allowed to read and write every namespace")
	}
	return s
}

// Authenticating reports whether key checks are enforced.
func (s *ACLService) Authenticating() bool {
	return s.authenticate
}

// Authenticate checks that apiKey is bound.
func (s *ACLService) Authenticate(ctx context.Context, apiKey string) error {
	if !s.authenticate {
		return nil
	}
	if err := domain.ValidateAPIKey(apiKey); err != nil {
		if errors.Is(err, domain.ErrAPIKeyMissing) {
			return err
		}
		return domain.ErrAPIKeyNotFound
	}
	bound, err := s.bound(ctx, apiKey)
	if err != nil {
		return err
	}
	if !bound {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}

// Check returns nil when apiKey may access ns in the given mode.
//
// Read and write grants are independent. A grant covers its prefix and
// every namespace below it, compared segment by segment.
func (s *ACLService) Check(ctx context.Context, apiKey string, mode domain.AccessMode, ns string) error {
	if !s.authenticate {
		return nil
	}
	if err := s.Authenticate(ctx, apiKey); err != nil {
		s.recordDenied(mode)
		return err
	}

	prefixes, err := s.prefixes(ctx, apiKey, mode)
	if err != nil {
		return err
	}
	for _, p := range prefixes {
		if domain.HasPathPrefix(ns, p) {
			return nil
		}
	}
	s.recordDenied(mode)
	return domain.ErrPermissionDenied.Detailf("cannot %s namespace: /%s", mode, domain.NormalizeNamespace(ns))
}

// CanRead reports whether apiKey may read ns.
func (s *ACLService) CanRead(ctx context.Context, apiKey, ns string) bool {
	return s.Check(ctx, apiKey, domain.ModeRead, ns) == nil
}

// CanWrite reports whether apiKey may write ns.
func (s *ACLService) CanWrite(ctx context.Context, apiKey, ns string) bool {
	return s.Check(ctx, apiKey, domain.ModeWrite, ns) == nil
}

// Bootstrap installs apiKey as the first-run trust anchor. The placeholder
// binding is removed and apiKey gets read and write access to the whole
// keyspace.
func (s *ACLService) Bootstrap(ctx context.Context, apiKey string) error {
	if err := domain.ValidateAPIKey(apiKey); err != nil {
		return err
	}
	if apiKey != domain.PlaceholderAPIKey {
		if _, err := s.store.DeletePrefix(ctx, domain.ACLBindingNamespace(domain.PlaceholderAPIKey)); err != nil {
			return err
		}
	}
	if err := s.Create(ctx, apiKey); err != nil {
		return err
	}
	for _, mode := range []domain.AccessMode{domain.ModeRead, domain.ModeWrite} {
		if err := s.Grant(ctx, apiKey, mode, ""); err != nil {
			return err
		}
	}
	s.logger.Info("bootstrap api key installed", "apikey", apiKey, "fingerprint", token.Fingerprint(apiKey))
	return nil
}

// Create binds apiKey without granting anything.
func (s *ACLService) Create(ctx context.Context, apiKey string) error {
	if err := domain.ValidateAPIKey(apiKey); err != nil {
		return err
	}
	return s.store.WriteAdmin(ctx, domain.ACLBindingNamespace(apiKey), nil, 0)
}

// Grant lets apiKey access prefix in mode, binding the key if needed.
// The empty prefix grants the whole keyspace.
func (s *ACLService) Grant(ctx context.Context, apiKey string, mode domain.AccessMode, prefix string) error {
	if !mode.Valid() {
		return domain.ErrBadRequest.Detailf("unknown access mode: %s", mode)
	}
	if err := s.Create(ctx, apiKey); err != nil {
		return err
	}
	prefix = domain.NormalizeNamespace(prefix)
	if prefix != "" {
		if err := domain.ValidateNamespace(prefix); err != nil {
			return err
		}
	}
	if err := s.store.WriteAdmin(ctx, domain.ACLGrantNamespace(apiKey, mode), []byte(prefix), 0); err != nil {
		return err
	}
	s.logger.Info("acl grant added", "apikey", apiKey, "fingerprint", token.Fingerprint(apiKey), "mode", string(mode), "prefix", "/"+prefix)
	return nil
}

// Revoke removes apiKey with all its grants. It reports whether the key
// existed.
func (s *ACLService) Revoke(ctx context.Context, apiKey string) (bool, error) {
	if err := domain.ValidateAPIKey(apiKey); err != nil {
		return false, err
	}
	n, err := s.store.DeletePrefix(ctx, domain.ACLBindingNamespace(apiKey))
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.logger.Info("api key revoked", "apikey", apiKey, "fingerprint", token.Fingerprint(apiKey))
	}
	return n > 0, nil
}

// Keys returns the bound API keys in creation order.
func (s *ACLService) Keys(ctx context.Context) ([]string, error) {
	names, err := s.store.ListNamespaces(ctx, domain.ACLKeyRoot)
	if err != nil {
		return nil, err
	}
	root := domain.ACLKeyRoot + domain.Separator
	var keys []string
	for _, ns := range names {
		rest, ok := strings.CutPrefix(ns, root)
		if !ok || strings.Contains(rest, domain.Separator) {
			continue
		}
		keys = append(keys, rest)
	}
	return keys, nil
}

// Grants returns the prefixes apiKey holds, or domain.ErrAPIKeyNotFound.
func (s *ACLService) Grants(ctx context.Context, apiKey string) (*Grants, error) {
	if err := domain.ValidateAPIKey(apiKey); err != nil {
		return nil, err
	}
	bound, err := s.bound(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if !bound {
		return nil, domain.ErrAPIKeyNotFound
	}
	read, err := s.prefixes(ctx, apiKey, domain.ModeRead)
	if err != nil {
		return nil, err
	}
	write, err := s.prefixes(ctx, apiKey, domain.ModeWrite)
	if err != nil {
		return nil, err
	}
	return &Grants{Read: read, Write: write}, nil
}

func (s *ACLService) bound(ctx context.Context, apiKey string) (bool, error) {
	_, err := s.store.Read(ctx, domain.ACLBindingNamespace(apiKey), nil, domain.ReadOptions{})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *ACLService) prefixes(ctx context.Context, apiKey string, mode domain.AccessMode) ([]string, error) {
	entries, err := s.store.ReadNamespace(ctx, domain.ACLGrantNamespace(apiKey, mode), domain.ReadOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, string(e.Value))
	}
	return out, nil
}

func (s *ACLService) recordDenied(mode domain.AccessMode) {
	if s.metrics != nil {
		s.metrics.RecordACLDenied(string(mode))
	}
}
