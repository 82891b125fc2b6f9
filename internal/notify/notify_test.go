package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sends []struct {
		to   transport.ChatTarget
		text string
	}
	err error
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Message) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, struct {
		to   transport.ChatTarget
		text string
	}{to, text})
	return f.err
}

func TestBroadcastTargetsChannel(t *testing.T) {
	fa := &fakeAdapter{}
	d := New(Config{RatePerSec: 100}, fa, -100, logx.Nop())

	d.Broadcast(context.Background(), "hello")
	d.Direct(context.Background(), 42, "dm")

	if len(fa.sends) != 2 {
		t.Fatalf("sends = %d", len(fa.sends))
	}
	if fa.sends[0].to.ChatID != -100 || fa.sends[0].text != "hello" {
		t.Fatalf("broadcast = %+v", fa.sends[0])
	}
	if fa.sends[1].to.ChatID != 42 || fa.sends[1].text != "dm" {
		t.Fatalf("direct = %+v", fa.sends[1])
	}
}

func TestTransportFailureIsSwallowed(t *testing.T) {
	fa := &fakeAdapter{err: errors.New("telegram down")}
	d := New(Config{RatePerSec: 100}, fa, -100, logx.Nop())

	// Must not panic or propagate; the timer-firing path depends on it.
	d.Broadcast(context.Background(), "hello")
	if len(fa.sends) != 1 {
		t.Fatalf("sends = %d", len(fa.sends))
	}
}

func TestEmptyTextIsDropped(t *testing.T) {
	fa := &fakeAdapter{}
	d := New(Config{RatePerSec: 100}, fa, -100, logx.Nop())
	d.Broadcast(context.Background(), "")
	if len(fa.sends) != 0 {
		t.Fatalf("sends = %d, want 0", len(fa.sends))
	}
}
