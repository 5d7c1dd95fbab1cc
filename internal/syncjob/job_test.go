package syncjob

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parcelaid/backend/internal/model"
	"github.com/parcelaid/backend/internal/repository"
)

// ---------------------------------------------------------------------------
// mockTarget: wraps MemoryTarget with injectable failures
// ---------------------------------------------------------------------------

type mockTarget struct {
	*MemoryTarget
	existsFunc func(ctx context.Context, c model.Collection, key model.Key) (bool, error)
	insertFunc func(ctx context.Context, c model.Collection, key model.Key, doc map[string]any) error
}

func newMockTarget() *mockTarget {
	return &mockTarget{MemoryTarget: NewMemoryTarget()}
}

func (m *mockTarget) Exists(ctx context.Context, c model.Collection, key model.Key) (bool, error) {
	if m.existsFunc != nil {
		return m.existsFunc(ctx, c, key)
	}
	return m.MemoryTarget.Exists(ctx, c, key)
}

func (m *mockTarget) Insert(ctx context.Context, c model.Collection, key model.Key, doc map[string]any) error {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, c, key, doc)
	}
	return m.MemoryTarget.Insert(ctx, c, key, doc)
}

var syncNow = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

func newTestJob(store repository.RecordStore, target Target) *Job {
	j := NewJob(store, target, time.Minute)
	j.now = func() time.Time { return syncNow }
	return j
}

func seedStore(t *testing.T) *repository.MemoryRecordStore {
	t.Helper()
	store := repository.NewMemoryRecordStore()
	ctx := context.Background()
	add := func(c model.Collection, rec string) {
		if _, err := store.Append(ctx, c, json.RawMessage(rec)); err != nil {
			t.Fatal(err)
		}
	}
	add(model.CollectionDonations, `{"name":"Asha","email":"a@x.com","phone":"555","parcelCount":1,"totalAmount":75,"date":"2024-01-15T10:30:00.000Z"}`)
	// same donor twice is legal and must sync as two documents
	add(model.CollectionDonations, `{"name":"Asha","email":"a@x.com","phone":"555","parcelCount":2,"totalAmount":150,"date":"2024-01-16T10:30:00.000Z"}`)
	add(model.CollectionVolunteer, `{"name":"Ben","email":"b@x.com","phone":"1","help":"packing","message":"","date":"2024-01-15T11:00:00.000Z"}`)
	add(model.CollectionNewsletter, `"legacy@x.com"`)
	add(model.CollectionNewsletter, `{"email":"n@x.com","date":"2024-01-15T12:00:00.000Z"}`)
	add(model.CollectionContact, `{"name":"C","email":"c@x.com","message":"hi","date":"2024-01-15T13:00:00.000Z"}`)
	return store
}

func TestJob_RunOnce_CopiesEveryRecord(t *testing.T) {
	store := seedStore(t)
	target := NewMemoryTarget()
	j := newTestJob(store, target)

	report, ok := j.RunOnce(context.Background())
	if !ok {
		t.Fatal("expected run to execute")
	}
	want := map[model.Collection]int{
		model.CollectionDonations:  2,
		model.CollectionVolunteer:  1,
		model.CollectionNewsletter: 2,
		model.CollectionContact:    1,
	}
	for c, n := range want {
		if got := len(target.Docs(c)); got != n {
			t.Errorf("%s: expected %d docs, got %d", c, n, got)
		}
		if report[c].Inserted != n || report[c].Err != nil {
			t.Errorf("%s: unexpected report %+v", c, report[c])
		}
	}

	doc := target.Docs(model.CollectionDonations)[0]
	if doc["date"] != "2024-01-15T10:30:00.000Z" {
		t.Errorf("original submission date must be kept, got %v", doc["date"])
	}
	if doc["createdAt"] != syncNow || doc["updatedAt"] != syncNow {
		t.Errorf("expected storage timestamps, got %v / %v", doc["createdAt"], doc["updatedAt"])
	}
	if doc["parcelCount"] != int64(1) {
		t.Errorf("expected integer parcelCount, got %#v", doc["parcelCount"])
	}

	legacy := target.Docs(model.CollectionNewsletter)[0]
	if legacy["email"] != "legacy@x.com" {
		t.Errorf("bare-string entry should sync as {email}, got %v", legacy)
	}
}

func TestJob_RunOnce_Idempotent(t *testing.T) {
	store := seedStore(t)
	target := NewMemoryTarget()
	j := newTestJob(store, target)
	ctx := context.Background()

	j.RunOnce(ctx)
	report, _ := j.RunOnce(ctx)

	for _, c := range model.Collections {
		if got, want := len(target.Docs(c)), store.Count(ctx, c); got != want {
			t.Errorf("%s: expected exactly %d docs after two runs, got %d", c, want, got)
		}
		if report[c].Inserted != 0 {
			t.Errorf("%s: second run inserted %d", c, report[c].Inserted)
		}
		if report[c].Present != store.Count(ctx, c) {
			t.Errorf("%s: expected all records present on second run, got %+v", c, report[c])
		}
	}
	if store.Count(ctx, model.CollectionDonations) != 2 {
		t.Error("sync must not remove local records")
	}
}

func TestJob_RunOnce_FailureIsolatedAndResumed(t *testing.T) {
	store := seedStore(t)
	target := newMockTarget()
	calls := 0
	target.insertFunc = func(ctx context.Context, c model.Collection, key model.Key, doc map[string]any) error {
		if c == model.CollectionDonations {
			calls++
			if calls == 2 {
				return errors.New("connection reset")
			}
		}
		return target.MemoryTarget.Insert(ctx, c, key, doc)
	}
	j := newTestJob(store, target)
	ctx := context.Background()

	report, _ := j.RunOnce(ctx)
	if report[model.CollectionDonations].Err == nil {
		t.Fatal("expected donations error in report")
	}
	if report[model.CollectionDonations].Inserted != 1 {
		t.Errorf("expected partial progress of 1, got %d", report[model.CollectionDonations].Inserted)
	}
	if len(target.Docs(model.CollectionContact)) != 1 {
		t.Error("a failing collection must not block the others")
	}

	target.insertFunc = nil
	report, _ = j.RunOnce(ctx)
	if report[model.CollectionDonations].Err != nil || report[model.CollectionDonations].Inserted != 1 {
		t.Errorf("expected the remainder to sync, got %+v", report[model.CollectionDonations])
	}
	if got := len(target.Docs(model.CollectionDonations)); got != 2 {
		t.Errorf("expected 2 donation docs, got %d", got)
	}
}

func TestJob_RunOnce_TargetUnreachable(t *testing.T) {
	store := seedStore(t)
	target := newMockTarget()
	target.existsFunc = func(context.Context, model.Collection, model.Key) (bool, error) {
		return false, errors.New("server selection timeout")
	}
	j := newTestJob(store, target)

	report, ok := j.RunOnce(context.Background())
	if !ok {
		t.Fatal("expected run to execute")
	}
	for _, c := range model.Collections {
		if report[c].Err == nil {
			t.Errorf("%s: expected error", c)
		}
	}
}

func TestJob_RunOnce_SkipsRecordsWithoutKey(t *testing.T) {
	store := repository.NewMemoryRecordStore()
	ctx := context.Background()
	_, _ = store.Append(ctx, model.CollectionContact, json.RawMessage(`{"name":"no date","email":"x@x.com"}`))
	_, _ = store.Append(ctx, model.CollectionContact, json.RawMessage(`{"email":"y@x.com","date":"2024-01-01T00:00:00.000Z"}`))
	target := NewMemoryTarget()

	report, _ := newTestJob(store, target).RunOnce(ctx)
	r := report[model.CollectionContact]
	if r.Skipped != 1 || r.Inserted != 1 || r.Err != nil {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestJob_RunOnce_SkipsWhileRunning(t *testing.T) {
	store := seedStore(t)
	target := newMockTarget()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	target.existsFunc = func(ctx context.Context, c model.Collection, key model.Key) (bool, error) {
		once.Do(func() { close(entered) })
		<-release
		return target.MemoryTarget.Exists(ctx, c, key)
	}
	j := newTestJob(store, target)

	done := make(chan struct{})
	go func() {
		defer close(done)
		j.RunOnce(context.Background())
	}()
	<-entered

	if _, ok := j.RunOnce(context.Background()); ok {
		t.Error("expected overlapping run to be skipped")
	}
	close(release)
	<-done

	if _, ok := j.RunOnce(context.Background()); !ok {
		t.Error("expected a new run once the previous one finished")
	}
}

func TestJob_RunOnce_RecoversPanic(t *testing.T) {
	store := seedStore(t)
	target := newMockTarget()
	target.existsFunc = func(context.Context, model.Collection, model.Key) (bool, error) {
		panic("driver bug")
	}
	report, ok := newTestJob(store, target).RunOnce(context.Background())
	if !ok || report[model.CollectionDonations].Err == nil {
		t.Errorf("expected panic to be reported as an error, got %+v", report[model.CollectionDonations])
	}
}

func TestJob_Run_StopsOnCancel(t *testing.T) {
	store := seedStore(t)
	target := NewMemoryTarget()
	j := NewJob(store, target, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(target.Docs(model.CollectionContact)) == 0 {
		select {
		case <-deadline:
			t.Fatal("sync never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// 外部ストアが最初の実行時に落ちていても、次のティックで同期されること
func TestJob_Run_RetriesWhenTargetComesBack(t *testing.T) {
	store := seedStore(t)
	target := newMockTarget()
	var reachable atomic.Bool
	var failures atomic.Int32
	target.existsFunc = func(ctx context.Context, c model.Collection, key model.Key) (bool, error) {
		if !reachable.Load() {
			failures.Add(1)
			return false, errors.New("server selection error: connection refused")
		}
		return target.MemoryTarget.Exists(ctx, c, key)
	}
	j := NewJob(store, target, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	waitFor := func(what string, cond func() bool) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for !cond() {
			select {
			case <-deadline:
				t.Fatalf("timed out waiting for %s", what)
			case <-time.After(5 * time.Millisecond):
			}
		}
	}

	waitFor("a failed run", func() bool { return failures.Load() >= int32(len(model.Collections)) })
	if n := len(target.Docs(model.CollectionDonations)); n != 0 {
		t.Fatalf("nothing should land while unreachable, got %d", n)
	}

	reachable.Store(true)
	waitFor("records after recovery", func() bool {
		return len(target.Docs(model.CollectionDonations)) == 2 &&
			len(target.Docs(model.CollectionVolunteer)) == 1 &&
			len(target.Docs(model.CollectionNewsletter)) == 2 &&
			len(target.Docs(model.CollectionContact)) == 1
	})

	cancel()
	<-done
}

func TestNewTarget_MongoUnreachableDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	start := time.Now()
	tg, err := NewTarget(ctx, TargetConfig{Kind: "mongo", MongoURI: "mongodb://127.0.0.1:1", Database: "parcelaid"})
	if err != nil {
		t.Fatalf("an unreachable server must not fail construction: %v", err)
	}
	defer tg.Close(ctx)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("NewTarget blocked for %v", elapsed)
	}
}

func TestNewJob_DefaultInterval(t *testing.T) {
	j := NewJob(repository.NewMemoryRecordStore(), NewMemoryTarget(), 0)
	if j.interval != DefaultInterval {
		t.Errorf("expected %v, got %v", DefaultInterval, j.interval)
	}
}

func TestNewTarget_Kinds(t *testing.T) {
	ctx := context.Background()
	if _, err := NewTarget(ctx, TargetConfig{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled without MONGODB_URI, got %v", err)
	}
	if got := (TargetConfig{MongoURI: "mongodb://localhost"}).ResolvedKind(); got != "mongo" {
		t.Errorf("expected mongo, got %q", got)
	}
	tg, err := NewTarget(ctx, TargetConfig{Kind: "memory"})
	if err != nil {
		t.Fatalf("memory target: %v", err)
	}
	if _, ok := tg.(*MemoryTarget); !ok {
		t.Errorf("expected *MemoryTarget, got %T", tg)
	}
	if _, err := NewTarget(ctx, TargetConfig{Kind: "couchdb"}); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := NewTarget(ctx, TargetConfig{Kind: "mongo"}); err == nil {
		t.Error("expected error for mongo without URI")
	}
}

func TestKeyFilter_PreservesKeyOrder(t *testing.T) {
	filter := keyFilter(model.Key{{Name: "email", Value: "a@x.com"}, {Name: "date", Value: "d"}})
	if len(filter) != 2 {
		t.Fatalf("expected 2 filter elements, got %d", len(filter))
	}
	if filter[0].Key != "email" || filter[0].Value != "a@x.com" || filter[1].Key != "date" {
		t.Errorf("unexpected filter %v", filter)
	}
}
