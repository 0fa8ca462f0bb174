package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gymbrocolombia/gymbot/internal/flow"
	"github.com/gymbrocolombia/gymbot/internal/models"
	"github.com/gymbrocolombia/gymbot/internal/session"
	"github.com/gymbrocolombia/gymbot/internal/store"
)

type recordedText struct {
	To   string
	Body string
}

type recordedMedia struct {
	To      string
	Path    string
	Caption string
}

// fakeService records sends in place of a real transport.
type fakeService struct {
	texts     []recordedText
	media     []recordedMedia
	sendErr   error
	responses chan models.Response
	events    chan models.ConnectionEvent
}

func newFakeService() *fakeService {
	return &fakeService{
		responses: make(chan models.Response, 10),
		events:    make(chan models.ConnectionEvent, 10),
	}
}

func (f *fakeService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient(recipient)
}

func (f *fakeService) SendMessage(_ context.Context, to, body string) error {
	if f.sendErr != nil && !strings.Contains(body, "Ocurrió un error") {
		return f.sendErr
	}
	f.texts = append(f.texts, recordedText{To: to, Body: body})
	return nil
}

func (f *fakeService) SendMedia(_ context.Context, to, path, caption string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.media = append(f.media, recordedMedia{To: to, Path: path, Caption: caption})
	return nil
}

func (f *fakeService) Start(context.Context) error { return nil }
func (f *fakeService) Stop() error                 { return nil }

func (f *fakeService) Responses() <-chan models.Response     { return f.responses }
func (f *fakeService) Events() <-chan models.ConnectionEvent { return f.events }

func newTestHandler(svc Service, st store.Store, opts ...HandlerOption) (*ResponseHandler, *session.Store) {
	sessions := session.NewStore()
	engine := flow.NewEngine(
		flow.WithQRAsset(models.LocationVenecia, "/assets/qr-venecia.jpg"),
		flow.WithFileChecker(func(string) bool { return true }),
	)
	base := []HandlerOption{WithSendDelay(0)}
	rh := NewResponseHandler(svc, sessions, engine, st, append(base, opts...)...)
	return rh, sessions
}

func inbound(from, body string) models.Response {
	return models.Response{From: from, Body: body, Time: time.Now().Unix()}
}

func TestProcessResponse_FirstContact(t *testing.T) {
	svc := newFakeService()
	st := store.NewInMemoryStore()
	rh, sessions := newTestHandler(svc, st)
	ctx := context.Background()

	if err := rh.ProcessResponse(ctx, inbound("+57 300 111 2233", "hola")); err != nil {
		t.Fatalf("ProcessResponse: %v", err)
	}

	if len(svc.texts) != 1 {
		t.Fatalf("sent %d texts, want 1", len(svc.texts))
	}
	if svc.texts[0].To != "573001112233" {
		t.Errorf("recipient = %q, want canonical digits", svc.texts[0].To)
	}
	if !strings.Contains(svc.texts[0].Body, "tratamiento de tus datos") {
		t.Errorf("first reply = %q", svc.texts[0].Body)
	}
	if sessions.Len() != 1 {
		t.Errorf("sessions = %d, want 1", sessions.Len())
	}
	if _, ok := st.Get("573001112233"); !ok {
		t.Error("interaction was not persisted")
	}
}

func TestProcessResponse_InvalidSender(t *testing.T) {
	svc := newFakeService()
	rh, _ := newTestHandler(svc, store.NewInMemoryStore())

	err := rh.ProcessResponse(context.Background(), inbound("abc", "hola"))
	if err == nil {
		t.Fatal("expected an error for an invalid sender")
	}
	if !errors.Is(err, models.ErrInvalidRecipient) {
		t.Errorf("error = %v, want ErrInvalidRecipient", err)
	}
	if len(svc.texts) != 0 {
		t.Error("invalid sender must not receive replies")
	}
}

func TestProcessResponse_EndSessionRemovesAndPersists(t *testing.T) {
	svc := newFakeService()
	st := store.NewInMemoryStore()
	rh, sessions := newTestHandler(svc, st)
	ctx := context.Background()

	rh.ProcessResponse(ctx, inbound("573001112233", "hola"))
	if err := rh.ProcessResponse(ctx, inbound("573001112233", "salir")); err != nil {
		t.Fatalf("ProcessResponse: %v", err)
	}

	if sessions.Len() != 0 {
		t.Error("exit should remove the session")
	}
	if _, ok := st.Get("573001112233"); !ok {
		t.Error("exit should still flush the interaction")
	}
}

func TestProcessResponse_ContractAndFeedback(t *testing.T) {
	svc := newFakeService()
	st := store.NewInMemoryStore()
	rh, _ := newTestHandler(svc, st)
	ctx := context.Background()

	for _, text := range []string{"hola", "acepto", "2", "flash", "sí", "excelente atención"} {
		if err := rh.ProcessResponse(ctx, inbound("573001112233", text)); err != nil {
			t.Fatalf("ProcessResponse(%q): %v", text, err)
		}
	}

	rec, ok := st.Get("573001112233")
	if !ok {
		t.Fatal("record missing")
	}
	if !rec.Contracted || rec.PlanDurationDay != 30 {
		t.Errorf("contract fields: %+v", rec)
	}
	if rec.Experience != "excelente atención" {
		t.Errorf("experience = %q", rec.Experience)
	}
	if rec.PlanInterested != "flash" {
		t.Errorf("plan = %q", rec.PlanInterested)
	}
}

func TestProcessResponse_MediaReply(t *testing.T) {
	svc := newFakeService()
	rh, _ := newTestHandler(svc, store.NewInMemoryStore())
	ctx := context.Background()

	for _, text := range []string{"hola", "acepto", "venecia", "contratar flash", "transferencia"} {
		if err := rh.ProcessResponse(ctx, inbound("573001112233", text)); err != nil {
			t.Fatalf("ProcessResponse(%q): %v", text, err)
		}
	}

	if len(svc.media) != 1 {
		t.Fatalf("sent %d media, want 1", len(svc.media))
	}
	if svc.media[0].Path != "/assets/qr-venecia.jpg" {
		t.Errorf("media path = %q", svc.media[0].Path)
	}
	if !strings.Contains(svc.media[0].Caption, "QR") {
		t.Errorf("caption = %q", svc.media[0].Caption)
	}
}

func TestProcessResponse_Suppressed(t *testing.T) {
	svc := newFakeService()
	rh, _ := newTestHandler(svc, store.NewInMemoryStore())
	ctx := context.Background()

	rh.ProcessResponse(ctx, inbound("573001112233", "hola"))
	rh.ProcessResponse(ctx, inbound("573001112233", "acepto"))
	rh.ProcessResponse(ctx, inbound("573001112233", "asesor"))
	sent := len(svc.texts)

	if err := rh.ProcessResponse(ctx, inbound("573001112233", "sigues ahi?")); err != nil {
		t.Fatalf("ProcessResponse: %v", err)
	}
	if len(svc.texts) != sent {
		t.Error("suppressed message must not produce replies")
	}
}

func TestProcessResponse_SendFailureApologizes(t *testing.T) {
	svc := newFakeService()
	svc.sendErr = errors.New("socket closed")
	rh, _ := newTestHandler(svc, store.NewInMemoryStore())

	err := rh.ProcessResponse(context.Background(), inbound("573001112233", "hola"))
	if err == nil {
		t.Fatal("expected send failure to surface")
	}
	if len(svc.texts) != 1 || !strings.Contains(svc.texts[0].Body, "Ocurrió un error") {
		t.Errorf("expected a best-effort apology, got %v", svc.texts)
	}
}

func TestProcessResponse_CleanupTrigger(t *testing.T) {
	svc := newFakeService()
	ran := false
	rh, _ := newTestHandler(svc, store.NewInMemoryStore(), WithCleanupTrigger(func() { ran = true }))
	ctx := context.Background()

	rh.ProcessResponse(ctx, inbound("573001112233", "hola"))
	rh.ProcessResponse(ctx, inbound("573001112233", "acepto"))
	if err := rh.ProcessResponse(ctx, inbound("573001112233", "cleanup")); err != nil {
		t.Fatalf("ProcessResponse: %v", err)
	}
	if !ran {
		t.Error("cleanup command did not trigger the sweep")
	}
}

func TestHandlerStart_ConsumesResponses(t *testing.T) {
	svc := newFakeService()
	rh, sessions := newTestHandler(svc, store.NewInMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rh.Start(ctx)
	svc.responses <- inbound("573001112233", "hola")

	deadline := time.After(2 * time.Second)
	for sessions.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("response was never processed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
