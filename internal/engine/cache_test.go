package engine

import (
	"context"
	"testing"

	"github.com/lexiqai/tts-gateway/internal/speech"
)

type countingFrontend struct {
	*Mock
	calls int
}

func (c *countingFrontend) Features(ctx context.Context, sentence, language string) (*speech.Features, []speech.Slot, error) {
	c.calls++
	return c.Mock.Features(ctx, sentence, language)
}

func TestCachedFrontend(t *testing.T) {
	inner := &countingFrontend{Mock: NewMock(MockOptions{})}
	fe, err := NewCachedFrontend(inner, 2)
	if err != nil {
		t.Fatalf("NewCachedFrontend failed: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := fe.Features(ctx, "Hello there.", "EN"); err != nil {
			t.Fatalf("Features failed: %v", err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("Expected 1 frontend call for repeated sentence, got %d", inner.calls)
	}

	// same text, different language is a different entry
	fe.Features(ctx, "Hello there.", "ZH_MIX_EN")
	if inner.calls != 2 {
		t.Errorf("Expected language to be part of the key, got %d calls", inner.calls)
	}

	// evicts the least recently used entry
	fe.Features(ctx, "Another one.", "EN")
	fe.Features(ctx, "Hello there.", "EN")
	if inner.calls != 4 {
		t.Errorf("Expected eviction at capacity 2, got %d calls", inner.calls)
	}
}

func TestCachedFrontend_Disabled(t *testing.T) {
	inner := &countingFrontend{Mock: NewMock(MockOptions{})}
	fe, err := NewCachedFrontend(inner, 0)
	if err != nil {
		t.Fatalf("NewCachedFrontend failed: %v", err)
	}
	if fe != speech.Frontend(inner) {
		t.Error("Expected the frontend to be returned unwrapped when caching is disabled")
	}
}
