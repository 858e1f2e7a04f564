package ports

import (
	"context"
	"time"

	"github.com/thitiwat-dev/go-shortlink/pkg/core/domain"
)

// LinkStore defines storage operations for links. Missing rows are
// reported as (nil, nil) from the finders; a code conflict on Create is
// a domain.KindDuplicate error. The check-and-insert in Create and the
// counter update in IncrementClicks must be atomic at the storage layer.
type LinkStore interface {
	Create(ctx context.Context, link *domain.Link) error
	FindByCode(ctx context.Context, code string) (*domain.Link, error)
	IncrementClicks(ctx context.Context, code string, at time.Time) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Link, error)
	DeleteByIDAndOwner(ctx context.Context, id int64, ownerID string) (bool, error)
	Dump(ctx context.Context) ([]domain.Link, error) // For migration

	// Stats
	RecordVisit(ctx context.Context, visit *domain.Visit) error
	GetLinkStats(ctx context.Context, linkID int64) (*domain.LinkStats, error)
}

// LinkService defines the business logic operations
type LinkService interface {
	Allocate(ctx context.Context, targetURL, customCode, ownerID string) (*domain.Link, error)
	Resolve(ctx context.Context, code string) (string, error)
	GetByCode(ctx context.Context, code string) (*domain.Link, error)
	List(ctx context.Context, ownerID string) ([]domain.Link, error)
	Delete(ctx context.Context, id int64, ownerID string) error

	// Stats
	RecordVisit(ctx context.Context, code, referer, userAgent, ip string) error
	GetLinkStats(ctx context.Context, id int64) (*domain.LinkStats, error)
}
