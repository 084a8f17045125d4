package services

import (
	"errors"
	"fmt"
	"testing"
)

func TestBoxErrorMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", withMessage(ErrNoActiveInstance, "custom"))
	if !errors.Is(wrapped, ErrNoActiveInstance) {
		t.Fatal("copies of a sentinel should match it")
	}
	if errors.Is(wrapped, ErrNotReadyYet) {
		t.Fatal("different codes must not match")
	}
	if PublicMessage(wrapped) != "custom" {
		t.Fatalf("unexpected message %q", PublicMessage(wrapped))
	}
}

func TestInternalErrorHidesCause(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := internalError("load user", cause)
	if KindOf(err) != KindInternal {
		t.Fatal("expected internal kind")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause should stay reachable for logging")
	}
	if PublicMessage(err) != "Internal server error." {
		t.Fatalf("cause leaked into message: %q", PublicMessage(err))
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatal("unknown errors are internal")
	}
}
