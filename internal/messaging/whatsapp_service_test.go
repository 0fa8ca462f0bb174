package messaging

import (
	"context"
	"testing"

	"github.com/gymbrocolombia/gymbot/internal/whatsapp"
)

// Ensure WhatsAppService implements Service interface
func TestWhatsAppService_ImplementsService(t *testing.T) {
	var _ Service = (*WhatsAppService)(nil)
}

func TestWhatsAppService_SendMessage_Canonicalizes(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)

	if err := svc.SendMessage(context.Background(), "+57 300 111 2233", "hola"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if len(mockClient.Texts) != 1 {
		t.Fatalf("client recorded %d sends, want 1", len(mockClient.Texts))
	}
	if mockClient.Texts[0].To != "573001112233" {
		t.Errorf("send went to %q, want canonical digits", mockClient.Texts[0].To)
	}
	if mockClient.Texts[0].Body != "hola" {
		t.Errorf("body = %q", mockClient.Texts[0].Body)
	}
}

func TestWhatsAppService_SendMessage_InvalidRecipient(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)

	if err := svc.SendMessage(context.Background(), "not-a-number", "hola"); err == nil {
		t.Fatal("expected validation error")
	}
	if len(mockClient.Texts) != 0 {
		t.Error("invalid recipient must not reach the client")
	}
}

func TestWhatsAppService_SendMedia(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)

	if err := svc.SendMedia(context.Background(), "573001112233", "/assets/qr.jpg", "escanea"); err != nil {
		t.Fatalf("SendMedia returned error: %v", err)
	}
	if len(mockClient.Images) != 1 {
		t.Fatalf("client recorded %d images, want 1", len(mockClient.Images))
	}
	if mockClient.Images[0].Path != "/assets/qr.jpg" || mockClient.Images[0].Caption != "escanea" {
		t.Errorf("unexpected image send %+v", mockClient.Images[0])
	}
}

// Test Start and Stop do not error and close channels
func TestWhatsAppService_StartStop(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	// Receiving from the closed channels yields the zero value immediately.
	if _, ok := <-svc.Responses(); ok {
		t.Error("expected responses channel closed")
	}
	if _, ok := <-svc.Events(); ok {
		t.Error("expected events channel closed")
	}
}

func TestWhatsAppService_SendAfterStop(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "573001112233", "hola"); err != ErrServiceStopped {
		t.Errorf("error = %v, want ErrServiceStopped", err)
	}
}
