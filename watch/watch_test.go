package watch

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/kickguard/dbopen"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithSchema(
		"CREATE TABLE items (id INTEGER PRIMARY KEY, ts INTEGER)"))
}

func bump(t *testing.T, db *sql.DB, ts int) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO items (ts) VALUES (?)", ts); err != nil {
		t.Fatal(err)
	}
}

func TestMaxColumnDetector(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	det := MaxColumnDetector("items", "ts")

	v, err := det(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Fatalf("empty table: got %d, want 0", v)
	}

	bump(t, db, 100)
	if v, _ = det(ctx, db); v != 100 {
		t.Fatalf("got %d, want 100", v)
	}
}

func TestPragmaDataVersion(t *testing.T) {
	v, err := PragmaDataVersion(context.Background(), testDB(t))
	if err != nil {
		t.Fatal(err)
	}
	if v < 0 {
		t.Fatalf("got %d, want non-negative", v)
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent(`a"b`); got != `"a""b"` {
		t.Errorf("quoteIdent = %s", got)
	}
}

func TestOnChange_FiresOnChange(t *testing.T) {
	db := testDB(t)
	var reloads atomic.Int32
	w := New(db, Options{Interval: 20 * time.Millisecond, Detector: MaxColumnDetector("items", "ts")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func() error { reloads.Add(1); return nil })
	time.Sleep(50 * time.Millisecond)

	bump(t, db, 1)
	time.Sleep(100 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Fatalf("reloads = %d, want 1", got)
	}

	time.Sleep(100 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Fatalf("reloads without change = %d, want 1", got)
	}
	if w.Version() != 1 {
		t.Errorf("version = %d, want 1", w.Version())
	}
}

func TestOnChange_Debounce(t *testing.T) {
	db := testDB(t)
	var reloads atomic.Int32
	w := New(db, Options{
		Interval: 20 * time.Millisecond,
		Debounce: 150 * time.Millisecond,
		Detector: MaxColumnDetector("items", "ts"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func() error { reloads.Add(1); return nil })
	time.Sleep(50 * time.Millisecond)

	for i := 1; i <= 5; i++ {
		bump(t, db, i)
		time.Sleep(15 * time.Millisecond)
	}
	if got := reloads.Load(); got != 0 {
		t.Fatalf("reloads during debounce = %d, want 0", got)
	}

	time.Sleep(300 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Fatalf("reloads = %d, want 1", got)
	}
}

func TestOnChange_ErrorRetries(t *testing.T) {
	db := testDB(t)
	var calls atomic.Int32
	w := New(db, Options{Interval: 20 * time.Millisecond, Detector: MaxColumnDetector("items", "ts")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func() error {
		if calls.Add(1) == 1 {
			return errors.New("boom")
		}
		return nil
	})
	time.Sleep(50 * time.Millisecond)

	bump(t, db, 7)
	time.Sleep(150 * time.Millisecond)

	if got := calls.Load(); got < 2 {
		t.Fatalf("calls = %d, want a retry after the failure", got)
	}
	if v := w.Version(); v != 7 {
		t.Fatalf("version = %d, want 7", v)
	}
	if s := w.Stats(); s.Errors == 0 || s.Reloads == 0 || s.Checks == 0 {
		t.Errorf("stats = %+v", s)
	}
}
