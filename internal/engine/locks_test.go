package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestKeyedLockSerializesSameKey(t *testing.T) {
	l := NewKeyedLock(time.Second)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "WHATSAPP:wa_1")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	acquired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r2, err := l.Acquire(ctx, "WHATSAPP:wa_1")
		if err != nil {
			t.Errorf("second acquire: %v", err)
			return
		}
		close(acquired)
		r2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	wg.Wait()

	select {
	case <-acquired:
	default:
		t.Fatal("second acquire never succeeded after release")
	}
}

func TestKeyedLockTimesOut(t *testing.T) {
	l := NewKeyedLock(30 * time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	_, err = l.Acquire(ctx, "k")
	if !errors.Is(err, ErrConcurrency) {
		t.Fatalf("expected ErrConcurrency, got %v", err)
	}
}

func TestKeyedLockIndependentKeys(t *testing.T) {
	l := NewKeyedLock(time.Second)
	ctx := context.Background()

	r1, err := l.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	r2, err := l.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	r1()
	r2()
}

func TestKeyedLockHonorsContext(t *testing.T) {
	l := NewKeyedLock(time.Minute)
	release, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestParseDateHint(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) // a Tuesday

	cases := []struct {
		text string
		want time.Time
	}{
		{"mañana por la tarde", now.AddDate(0, 0, 1)},
		{"pasado mañana", now.AddDate(0, 0, 2)},
		{"hoy mismo", now},
		{"el viernes", time.Date(2026, 9, 4, 12, 0, 0, 0, time.UTC)},
		{"el martes", now.AddDate(0, 0, 7)}, // same weekday rolls forward
		{"el 15/09", time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)},
		{"15/10/2026", time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)},
		{"cuando se pueda", now},
	}
	for _, tc := range cases {
		got := ParseDateHint(tc.text, now)
		if !got.Equal(tc.want) {
			t.Errorf("ParseDateHint(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}
