package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gymbrocolombia/gymbot/internal/flow"
	"github.com/gymbrocolombia/gymbot/internal/models"
	"github.com/gymbrocolombia/gymbot/internal/session"
	"github.com/gymbrocolombia/gymbot/internal/store"
)

type sentMessage struct {
	To   string
	Body string
}

// fakeSender records outbound messages for assertions.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{To: to, Body: body})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func TestManager_HandleEvent_Transitions(t *testing.T) {
	sender := &fakeSender{}
	sessions := session.NewStore()
	m := NewManager(sender, nil, sessions, store.NewInMemoryStore())
	ctx := context.Background()

	if m.Status() != models.ConnectionDisconnected {
		t.Fatalf("initial status = %q", m.Status())
	}

	m.HandleEvent(ctx, models.ConnectionEvent{Kind: models.ConnectionEventQR, QRCode: "pair-me", Time: time.Now()})
	if qr, _ := m.LatestQR(); qr != "pair-me" {
		t.Errorf("latest QR = %q", qr)
	}

	m.HandleEvent(ctx, models.ConnectionEvent{Kind: models.ConnectionEventConnected})
	if m.Status() != models.ConnectionReady {
		t.Errorf("status after connect = %q", m.Status())
	}
	if qr, _ := m.LatestQR(); qr != "" {
		t.Error("connecting should clear the pending QR")
	}
	if m.ReconnectAttempts() != 0 {
		t.Errorf("attempts after connect = %d", m.ReconnectAttempts())
	}
}

func TestManager_ReconnectExhaustionExits(t *testing.T) {
	exitCh := make(chan int, 1)
	connectErr := errors.New("socket refused")

	m := NewManager(&fakeSender{}, nil, session.NewStore(), nil,
		WithBackoff(NewBackoffPolicy([]time.Duration{time.Millisecond}, 2)),
		WithConnectFunc(func(context.Context) error { return connectErr }),
		WithExitFunc(func(code int) {
			select {
			case exitCh <- code:
			default:
			}
		}),
	)

	m.HandleEvent(context.Background(), models.ConnectionEvent{Kind: models.ConnectionEventDisconnected})

	select {
	case code := <-exitCh:
		if code != 1 {
			t.Errorf("exit code = %d, want 1", code)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("exhausted reconnect budget did not exit")
	}
	if m.ReconnectAttempts() < 2 {
		t.Errorf("attempts = %d, want at least 2", m.ReconnectAttempts())
	}
}

func TestManager_ReconnectSuccessfulAttempt(t *testing.T) {
	connected := make(chan struct{}, 1)
	m := NewManager(&fakeSender{}, nil, session.NewStore(), nil,
		WithBackoff(NewBackoffPolicy([]time.Duration{time.Millisecond}, 5)),
		WithConnectFunc(func(context.Context) error {
			select {
			case connected <- struct{}{}:
			default:
			}
			return nil
		}),
		WithExitFunc(func(int) { t.Error("successful reconnect must not exit") }),
	)

	m.HandleEvent(context.Background(), models.ConnectionEvent{Kind: models.ConnectionEventStreamReplaced})

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect attempt never ran")
	}
}

func TestManager_CleanupInactive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sender := &fakeSender{}
	sessions := session.NewStore()
	st := store.NewInMemoryStore()
	m := NewManager(sender, nil, sessions, st,
		WithClock(func() time.Time { return now }),
		WithInactivityTimeout(5*time.Minute),
		WithSweepPacing(0),
	)

	sessions.Do("stale", func(s *models.ConversationState, _ bool) session.Outcome {
		s.Plan = "flash"
		s.LastActivity = now.Add(-10 * time.Minute)
		return session.Keep
	})
	sessions.Do("fresh", func(s *models.ConversationState, _ bool) session.Outcome {
		s.LastActivity = now.Add(-time.Minute)
		return session.Keep
	})

	removed := m.CleanupInactive(context.Background())
	if removed != 1 {
		t.Fatalf("removed %d sessions, want 1", removed)
	}
	if _, ok := sessions.Get("stale"); ok {
		t.Error("stale session should be evicted")
	}
	if _, ok := sessions.Get("fresh"); !ok {
		t.Error("fresh session should survive")
	}

	sent := sender.messages()
	if len(sent) != 1 || sent[0].To != "stale" {
		t.Fatalf("unexpected notifications %v", sent)
	}
	if sent[0].Body != flow.InactivityClosedMessage {
		t.Errorf("notification body = %q", sent[0].Body)
	}

	rec, ok := st.Get("stale")
	if !ok {
		t.Fatal("stale session was not flushed to the store")
	}
	if rec.PlanInterested != "flash" {
		t.Errorf("flushed plan = %q", rec.PlanInterested)
	}
}

func TestManager_CleanupInactive_Empty(t *testing.T) {
	m := NewManager(&fakeSender{}, nil, session.NewStore(), store.NewInMemoryStore())
	if removed := m.CleanupInactive(context.Background()); removed != 0 {
		t.Errorf("removed %d sessions from an empty store", removed)
	}
}

func TestManager_ReminderSweep(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sender := &fakeSender{}
	st := store.NewInMemoryStore()
	m := NewManager(sender, nil, session.NewStore(), st,
		WithClock(func() time.Time { return now }),
		WithSweepPacing(0),
	)
	ctx := context.Background()

	st.UpsertInteraction("idleprospect", "flash", now.Add(-72*time.Hour))
	st.UpsertInteraction("member", "flash", now)
	st.MarkContracted("member", now.AddDate(0, 0, -29), 30)

	// Not ready: the sweep must not send anything.
	m.ReminderSweep(ctx)
	if len(sender.messages()) != 0 {
		t.Fatal("sweep ran while transport was not ready")
	}

	m.HandleEvent(ctx, models.ConnectionEvent{Kind: models.ConnectionEventConnected})
	m.ReminderSweep(ctx)

	sent := sender.messages()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2: %v", len(sent), sent)
	}
	for _, msg := range sent {
		switch msg.To {
		case "idleprospect":
			if msg.Body != flow.ReengagementMessage {
				t.Errorf("re-engagement body = %q", msg.Body)
			}
		case "member":
			if !strings.Contains(msg.Body, "Te quedan 1 días") {
				t.Errorf("renewal body = %q", msg.Body)
			}
		default:
			t.Errorf("unexpected recipient %q", msg.To)
		}
	}

	// Successful sends touch the contact so the next sweep skips them.
	rec, _ := st.Get("idleprospect")
	if rec.LastMessageAt == nil || !rec.LastMessageAt.Equal(now) {
		t.Errorf("idle prospect was not touched: %+v", rec)
	}

	sender.sent = nil
	m.ReminderSweep(ctx)
	for _, msg := range sender.messages() {
		if msg.To == "idleprospect" {
			t.Error("touched prospect was reminded twice")
		}
	}
}

func TestManager_ReminderSweep_SendFailureSkipsTouch(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sender := &fakeSender{err: errors.New("transport down")}
	st := store.NewInMemoryStore()
	m := NewManager(sender, nil, session.NewStore(), st,
		WithClock(func() time.Time { return now }),
		WithSweepPacing(0),
	)
	ctx := context.Background()
	st.UpsertInteraction("idleprospect", "flash", now.Add(-72*time.Hour))

	m.HandleEvent(ctx, models.ConnectionEvent{Kind: models.ConnectionEventConnected})
	m.ReminderSweep(ctx)

	rec, _ := st.Get("idleprospect")
	if rec.LastMessageAt != nil {
		t.Error("failed send must not touch the contact")
	}
}
