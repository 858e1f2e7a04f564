package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/thitiwat-dev/go-shortlink/pkg/core/domain"
	"github.com/thitiwat-dev/go-shortlink/pkg/ports"
)

// maxAllocAttempts bounds the generate-and-insert loop for auto codes.
// The 62^6 code space makes more than a couple of conflicts in a row
// vanishingly unlikely; hitting the bound is an operational alert.
const maxAllocAttempts = 10

const (
	defaultStoreTimeout = 3 * time.Second
	defaultCacheTTL     = time.Minute
)

type Options struct {
	// RequireCustomCode rejects requests without a user-chosen code
	// instead of generating one.
	RequireCustomCode bool
	StoreTimeout      time.Duration
	CacheTTL          time.Duration
}

type LinkService struct {
	store             ports.LinkStore
	logger            *slog.Logger
	cache             *gocache.Cache // code -> target URL, hot redirect path
	storeTimeout      time.Duration
	requireCustomCode bool
}

func NewLinkService(store ports.LinkStore, logger *slog.Logger, opts Options) *LinkService {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	return &LinkService{
		store:             store,
		logger:            logger,
		cache:             gocache.New(opts.CacheTTL, 2*opts.CacheTTL),
		storeTimeout:      opts.StoreTimeout,
		requireCustomCode: opts.RequireCustomCode,
	}
}

// Allocate decides the final short code for targetURL and creates the
// record. Custom codes are reserved as-is; without one a random code is
// generated and retried on conflict. The store's unique constraint is
// the authority on conflicts, not a cooperative pre-check.
func (s *LinkService) Allocate(ctx context.Context, targetURL, customCode, ownerID string) (*domain.Link, error) {
	if !validTargetURL(targetURL) {
		return nil, domain.E(domain.KindInvalidTarget, "target must be an absolute URL")
	}

	if customCode != "" {
		if !validCode(customCode) {
			return nil, domain.E(domain.KindInvalidCode, "code must match [A-Za-z0-9_-] and be at most 64 chars")
		}
		link := newLink(customCode, targetURL, ownerID)
		if err := s.create(ctx, link); err != nil {
			if domain.IsKind(err, domain.KindDuplicate) {
				return nil, domain.E(domain.KindCodeInUse, "code already in use")
			}
			return nil, err
		}
		return link, nil
	}

	if s.requireCustomCode {
		return nil, domain.E(domain.KindCodeRequired, "custom code is required")
	}

	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		code, err := generateCode(codeLength)
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		link := newLink(code, targetURL, ownerID)
		err = s.create(ctx, link)
		if err == nil {
			return link, nil
		}
		if domain.IsKind(err, domain.KindDuplicate) {
			continue
		}
		return nil, err
	}

	s.logger.Error("short code allocation exhausted retry budget",
		"attempts", maxAllocAttempts)
	return nil, domain.E(domain.KindExhausted, "could not allocate a unique code")
}

// Resolve returns the destination for code and applies click accounting.
// The increment is atomic at the store and best-effort from the caller's
// point of view: once the target is known, an accounting failure is
// logged but never fails the redirect.
func (s *LinkService) Resolve(ctx context.Context, code string) (string, error) {
	now := time.Now()

	if cached, ok := s.cache.Get(code); ok {
		target := cached.(string)
		if err := s.incrementClicks(ctx, code, now); err != nil {
			if domain.IsKind(err, domain.KindNotFound) {
				// Link deleted since it was cached.
				s.cache.Delete(code)
				return "", domain.E(domain.KindNotFound, "link not found")
			}
			s.logger.Warn("click accounting failed", "code", code, "error", err)
		}
		return target, nil
	}

	link, err := s.findByCode(ctx, code)
	if err != nil {
		return "", err
	}
	if link == nil {
		return "", domain.E(domain.KindNotFound, "link not found")
	}

	s.cache.Set(code, link.TargetURL, gocache.DefaultExpiration)
	if err := s.incrementClicks(ctx, code, now); err != nil {
		s.logger.Warn("click accounting failed", "code", code, "error", err)
	}
	return link.TargetURL, nil
}

func (s *LinkService) GetByCode(ctx context.Context, code string) (*domain.Link, error) {
	link, err := s.findByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, domain.E(domain.KindNotFound, "link not found")
	}
	return link, nil
}

func (s *LinkService) List(ctx context.Context, ownerID string) ([]domain.Link, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.ListByOwner(ctx, ownerID)
}

func (s *LinkService) Delete(ctx context.Context, id int64, ownerID string) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	deleted, err := s.store.DeleteByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.E(domain.KindNotFound, "link not found or not owned")
	}
	// Drop any cached target so the code stops resolving promptly.
	s.cache.Flush()
	return nil
}

// RecordVisit persists the visit detail row for the stats view. It runs
// off the redirect path; click counters are maintained by Resolve.
func (s *LinkService) RecordVisit(ctx context.Context, code, referer, userAgent, ip string) error {
	link, err := s.findByCode(ctx, code)
	if err != nil {
		return err
	}
	if link == nil {
		return domain.E(domain.KindNotFound, "link not found")
	}

	visit := &domain.Visit{
		LinkID:    link.ID,
		Referer:   referer,
		UserAgent: userAgent,
		IPHash:    hashIP(ip),
		CreatedAt: time.Now(),
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.RecordVisit(ctx, visit)
}

func (s *LinkService) GetLinkStats(ctx context.Context, id int64) (*domain.LinkStats, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.GetLinkStats(ctx, id)
}

func (s *LinkService) create(ctx context.Context, link *domain.Link) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.Create(ctx, link)
}

func (s *LinkService) findByCode(ctx context.Context, code string) (*domain.Link, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.FindByCode(ctx, code)
}

func (s *LinkService) incrementClicks(ctx context.Context, code string, at time.Time) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.IncrementClicks(ctx, code, at)
}

// storeCtx bounds every store operation so a slow database surfaces as
// a transient failure instead of a hung request.
func (s *LinkService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func newLink(code, targetURL, ownerID string) *domain.Link {
	return &domain.Link{
		Code:      code,
		TargetURL: targetURL,
		OwnerID:   ownerID,
		Clicks:    0,
		CreatedAt: time.Now(),
	}
}

func validTargetURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
