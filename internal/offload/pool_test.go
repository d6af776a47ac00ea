package offload

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoReturnsResult(t *testing.T) {
	p := NewPool(2)
	defer p.Close()
	v, err := Do(context.Background(), p, func() (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Fatalf("got (%d, %v), want (42, nil)", v, err)
	}
}

func TestDoPropagatesError(t *testing.T) {
	p := NewPool(2)
	defer p.Close()
	wantErr := errors.New("boom")
	_, err := Do(context.Background(), p, func() (int, error) { return 0, wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestDoRespectsCancellation(t *testing.T) {
	p := NewPool(1)
	defer p.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, p, func() (int, error) {
		time.Sleep(50 * time.Millisecond)
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDoScopedBlocksUntilComplete(t *testing.T) {
	p := NewPool(1)
	defer p.Close()
	start := time.Now()
	v, err := DoScoped(context.Background(), p, func() (int, error) {
		time.Sleep(20 * time.Millisecond)
		return 7, nil
	})
	if err != nil || v != 7 {
		t.Fatalf("got (%d, %v)", v, err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("DoScoped returned before closure finished")
	}
}
