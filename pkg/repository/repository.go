package repository

import (
	"context"

	"github.com/smallbiznis/governa/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic store for simple filter/list paths. Anything that
// needs row locks or multi-table writes goes through a domain repository
// instead.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID string, resource any) error
	Delete(ctx context.Context, resourceID string) error
	Count(ctx context.Context, query *T) (int64, error)
	BatchCreate(ctx context.Context, resources []*T) error
}
