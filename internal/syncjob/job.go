package syncjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parcelaid/backend/internal/model"
	"github.com/parcelaid/backend/internal/repository"
)

// DefaultInterval is the sync cadence when none is configured.
const DefaultInterval = 5 * time.Minute

// CollectionReport は 1 回の実行における 1 コレクション分の結果
type CollectionReport struct {
	Scanned  int
	Inserted int
	Present  int
	Skipped  int
	Err      error
}

// Report maps each collection to its result for one run.
type Report map[model.Collection]*CollectionReport

// Job copies every local record into a Target unless a record with the same
// dedup key is already there. It never updates or deletes anything, locally or
// externally, so running it repeatedly is safe.
type Job struct {
	store    repository.RecordStore
	target   Target
	interval time.Duration
	now      func() time.Time

	running  atomic.Bool
	inflight sync.WaitGroup
}

// NewJob は Job を生成する。interval が 0 以下なら DefaultInterval を使う
func NewJob(store repository.RecordStore, target Target, interval time.Duration) *Job {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Job{store: store, target: target, interval: interval, now: time.Now}
}

// Run syncs immediately, then on every tick until ctx is cancelled. Ticks keep
// a fixed cadence; a tick that fires while a run is still going is skipped.
// Run returns after the in-flight run, if any, has finished.
func (j *Job) Run(ctx context.Context) {
	slog.Info("sync job started", "interval", j.interval.String())
	j.start(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.inflight.Wait()
			slog.Info("sync job stopped")
			return
		case <-ticker.C:
			j.start(ctx)
		}
	}
}

func (j *Job) start(ctx context.Context) {
	j.inflight.Add(1)
	go func() {
		defer j.inflight.Done()
		j.RunOnce(ctx)
	}()
}

// RunOnce は全コレクションを 1 回だけ処理する。
// 別の実行が進行中でスキップした場合 ok は false
func (j *Job) RunOnce(ctx context.Context) (report Report, ok bool) {
	if !j.running.CompareAndSwap(false, true) {
		slog.Warn("sync run skipped: previous run still in progress")
		return nil, false
	}
	defer j.running.Store(false)

	start := j.now()
	report = make(Report, len(model.Collections))
	for _, c := range model.Collections {
		r := j.syncCollection(ctx, c)
		report[c] = r
		attrs := []any{
			"collection", c,
			"scanned", r.Scanned,
			"inserted", r.Inserted,
			"present", r.Present,
			"skipped", r.Skipped,
		}
		if r.Err != nil {
			slog.Error("sync collection failed", append(attrs, "error", r.Err)...)
			continue
		}
		slog.Info("sync collection done", attrs...)
	}
	slog.Info("sync run finished", "duration_ms", j.now().Sub(start).Milliseconds())
	return report, true
}

// syncCollection はターゲットの最初のエラーで打ち切る。
// それまでに挿入した分は残り、残りは次の実行で拾う
func (j *Job) syncCollection(ctx context.Context, c model.Collection) (r *CollectionReport) {
	r = &CollectionReport{}
	defer func() {
		if p := recover(); p != nil {
			r.Err = fmt.Errorf("panic: %v", p)
		}
	}()

	for _, raw := range j.store.ReadAll(ctx, c) {
		if err := ctx.Err(); err != nil {
			r.Err = err
			return r
		}
		r.Scanned++

		key, err := model.DedupKey(c, raw)
		if err != nil {
			r.Skipped++
			if !errors.Is(err, model.ErrNoKey) {
				slog.Warn("sync: unreadable record skipped", "collection", c, "error", err)
			} else {
				slog.Debug("sync: record without dedup key skipped", "collection", c)
			}
			continue
		}

		exists, err := j.target.Exists(ctx, c, key)
		if err != nil {
			r.Err = fmt.Errorf("lookup %s: %w", key, err)
			return r
		}
		if exists {
			r.Present++
			continue
		}

		doc, err := model.Document(c, raw)
		if err != nil {
			r.Skipped++
			slog.Warn("sync: record could not be converted", "collection", c, "error", err)
			continue
		}
		now := j.now().UTC()
		doc["createdAt"] = now
		doc["updatedAt"] = now

		if err := j.target.Insert(ctx, c, key, doc); err != nil {
			r.Err = fmt.Errorf("insert %s: %w", key, err)
			return r
		}
		r.Inserted++
	}
	return r
}
