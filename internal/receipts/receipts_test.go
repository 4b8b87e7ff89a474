package receipts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestObjectKeyUsesDatePathAndExtension(t *testing.T) {
	at := time.Date(2025, 3, 9, 23, 30, 0, 0, time.UTC)

	key, err := ObjectKey(at, "image/png; charset=binary")
	if err != nil {
		t.Fatalf("object key: %v", err)
	}
	if !strings.HasPrefix(key, "receipts/2025/03/09/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestObjectKeyRejectsUnknownType(t *testing.T) {
	if _, err := ObjectKey(time.Now(), "text/html"); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected unsupported type, got %v", err)
	}
}

func TestValidateLimits(t *testing.T) {
	if err := validate(MaxSize+1, "application/pdf"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected too large, got %v", err)
	}
	if err := validate(0, "application/pdf"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected empty upload rejected, got %v", err)
	}
	if err := validate(1024, "IMAGE/JPEG"); err != nil {
		t.Fatalf("expected jpeg accepted, got %v", err)
	}
}

func TestDisabledStorage(t *testing.T) {
	var s Storage = Disabled{}
	if _, err := s.Put(context.Background(), strings.NewReader("x"), 1, "image/png"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
	if _, err := s.Get(context.Background(), "receipts/x.png"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}
