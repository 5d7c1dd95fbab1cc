package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/parcelaid/backend/internal/model"
	"github.com/parcelaid/backend/internal/storage"
)

// FileRecordStore keeps each collection as a JSON array in "<collection>.json".
// Every append rewrites the whole file; a mutex per collection serializes the
// read-modify-write cycle.
type FileRecordStore struct {
	storage storage.Storage
	locks   map[model.Collection]*sync.Mutex
}

// NewFileRecordStore creates a FileRecordStore on top of the given storage.
func NewFileRecordStore(st storage.Storage) *FileRecordStore {
	locks := make(map[model.Collection]*sync.Mutex, len(model.Collections))
	for _, c := range model.Collections {
		locks[c] = &sync.Mutex{}
	}
	return &FileRecordStore{storage: st, locks: locks}
}

var _ RecordStore = (*FileRecordStore)(nil)

func fileKey(c model.Collection) string {
	return string(c) + ".json"
}

// EnsureFiles creates an empty array file for every collection that has none yet.
func (s *FileRecordStore) EnsureFiles(ctx context.Context) error {
	for _, c := range model.Collections {
		mu := s.locks[c]
		mu.Lock()
		_, err := s.storage.Load(ctx, fileKey(c))
		if errors.Is(err, fs.ErrNotExist) {
			err = s.storage.Save(ctx, fileKey(c), bytes.NewReader([]byte("[]")))
			if err == nil {
				slog.Info("created collection file", "collection", c, "key", fileKey(c))
			}
		}
		mu.Unlock()
		if err != nil {
			return fmt.Errorf("ensure %s: %w", c, err)
		}
	}
	return nil
}

// Ping fails when a collection file exists but cannot be read.
func (s *FileRecordStore) Ping(ctx context.Context) error {
	for _, c := range model.Collections {
		if _, err := s.storage.Load(ctx, fileKey(c)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// load はコレクションを読み込む。
// ファイルが無い・空なら空列を返す。読み出し自体の失敗（I/O エラー）は err で返し、
// 内容を捨ててよいかは呼び出し側が決める。JSON として壊れている場合のみ damaged を立てる。
func (s *FileRecordStore) load(ctx context.Context, c model.Collection) (records []json.RawMessage, damaged bool, err error) {
	b, err := s.storage.Load(ctx, fileKey(c))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []json.RawMessage{}, false, nil
		}
		return []json.RawMessage{}, false, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return []json.RawMessage{}, false, nil
	}
	if err := json.Unmarshal(b, &records); err != nil {
		slog.Warn("collection file unparsable, treating as empty", "collection", c, "error", err)
		return []json.RawMessage{}, true, nil
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	return records, false, nil
}

func (s *FileRecordStore) Append(ctx context.Context, c model.Collection, rec json.RawMessage) (int, error) {
	n, _, err := s.AppendUnique(ctx, c, rec, nil)
	return n, err
}

func (s *FileRecordStore) AppendUnique(ctx context.Context, c model.Collection, rec json.RawMessage, exists func(json.RawMessage) bool) (int, bool, error) {
	mu, ok := s.locks[c]
	if !ok {
		return 0, false, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	mu.Lock()
	defer mu.Unlock()

	records, damaged, err := s.load(ctx, c)
	if err != nil {
		// 一時的な読み出し失敗で既存の内容を上書き・退避しない
		slog.Error("collection read failed, append aborted", "collection", c, "error", err)
		return 0, false, fmt.Errorf("append %s: %w", c, err)
	}
	if exists != nil {
		for _, r := range records {
			if exists(r) {
				return len(records), false, nil
			}
		}
	}

	if damaged {
		// keep the old bytes around before the file is replaced
		moved, err := s.storage.Quarantine(ctx, fileKey(c))
		if err != nil {
			slog.Error("could not move damaged collection file aside", "collection", c, "error", err)
			return 0, false, fmt.Errorf("append %s: %w", c, err)
		}
		slog.Warn("damaged collection file moved aside", "collection", c, "moved_to", moved)
	}

	records = append(records, rec)
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return 0, false, fmt.Errorf("append %s: encode: %w", c, err)
	}
	if err := s.storage.Save(ctx, fileKey(c), bytes.NewReader(b)); err != nil {
		slog.Error("collection write failed", "collection", c, "error", err)
		return 0, false, fmt.Errorf("append %s: %w", c, err)
	}
	return len(records), true, nil
}

func (s *FileRecordStore) ReadAll(ctx context.Context, c model.Collection) []json.RawMessage {
	mu, ok := s.locks[c]
	if !ok {
		slog.Warn("read of unknown collection", "collection", c)
		return []json.RawMessage{}
	}
	mu.Lock()
	defer mu.Unlock()
	records, _, err := s.load(ctx, c)
	if err != nil {
		slog.Warn("collection file unreadable, treating as empty", "collection", c, "error", err)
	}
	return records
}

func (s *FileRecordStore) Count(ctx context.Context, c model.Collection) int {
	return len(s.ReadAll(ctx, c))
}
