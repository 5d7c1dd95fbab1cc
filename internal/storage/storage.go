package storage

import (
	"context"
	"io"
)

// Storage はコレクションファイルの読み書きを抽象化するインターフェース。
// key はベースディレクトリからの相対パス (例: "donations.json")。
type Storage interface {
	// Load は key の内容をすべて読み込む。存在しない場合は fs.ErrNotExist を wrap したエラーを返す。
	Load(ctx context.Context, key string) ([]byte, error)

	// Save は data で key を丸ごと置き換える。途中で失敗しても既存の内容は壊さない。
	Save(ctx context.Context, key string, data io.Reader) error

	// Quarantine は読めなくなった key を別名に退避し、退避先の key を返す。
	Quarantine(ctx context.Context, key string) (string, error)
}
