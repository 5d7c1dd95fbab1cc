package syncjob

import (
	"context"
	"errors"

	"github.com/parcelaid/backend/internal/model"
)

// ErrDisabled is returned by NewTarget when no external store is configured.
var ErrDisabled = errors.New("sync target disabled")

// Target はレコードのコピー先となる外部ストア。
// 既に存在するキーへの Insert は成功として扱うこと
type Target interface {
	// Exists reports whether a document matching every key field is present.
	Exists(ctx context.Context, c model.Collection, key model.Key) (bool, error)

	// Insert stores doc. key is the same key Exists was asked about.
	Insert(ctx context.Context, c model.Collection, key model.Key, doc map[string]any) error

	Close(ctx context.Context) error
}
