package repository

import (
	"context"
	"encoding/json"

	"github.com/parcelaid/backend/internal/model"
)

// DB は保存先の生存確認を行うインターフェース
type DB interface {
	Ping(ctx context.Context) error
}

// RecordStore はコレクションごとの追記専用レコード列を永続化するインターフェース。
// ファイル・メモリ・PostgreSQL の実装を差し替えられる。
type RecordStore interface {
	DB

	// Append は rec を末尾に追加し、追加後の件数を返す。
	Append(ctx context.Context, c model.Collection, rec json.RawMessage) (int, error)

	// AppendUnique は既存レコードのいずれかで exists が true を返した場合は何もしない。
	// 判定と追加は同じ排他区間で行われる。
	AppendUnique(ctx context.Context, c model.Collection, rec json.RawMessage, exists func(json.RawMessage) bool) (count int, appended bool, err error)

	// ReadAll は挿入順のレコード列を返す。読めない場合も空スライスを返し、エラーにはしない。
	ReadAll(ctx context.Context, c model.Collection) []json.RawMessage

	// Count は ReadAll の件数を返す。
	Count(ctx context.Context, c model.Collection) int
}
