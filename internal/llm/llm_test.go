package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"subvertnews/internal/config"
	"subvertnews/internal/core"
)

func TestGateway_Call_UnboundStage(t *testing.T) {
	gw := NewGateway(&config.Stages{}, nil)
	_, _, err := gw.Call(context.Background(), StageBrainstorm, "prompt", "")
	if err == nil {
		t.Fatal("expected error for unbound stage")
	}
}

func TestGateway_Call_UnknownProvider(t *testing.T) {
	gw := NewGateway(&config.Stages{
		Brainstorm: config.StageBinding{Provider: "nonexistent", Model: "m1"},
	}, nil)
	_, _, err := gw.Call(context.Background(), StageBrainstorm, "prompt", "")
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestGateway_Call_MissingGeminiKey(t *testing.T) {
	gw := NewGateway(&config.Stages{
		Generate: config.StageBinding{Provider: "google", Model: "gemini-2.5-flash"},
	}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := gw.Call(ctx, StageGenerate, "prompt", "")
	if err == nil {
		t.Fatal("expected error when no Gemini API key is configured")
	}
}

func TestGateway_Call_MissingAnthropicKey(t *testing.T) {
	gw := NewGateway(&config.Stages{
		Polish: config.StageBinding{Provider: "anthropic", Model: "claude-opus-4-6"},
	}, nil)
	_, _, err := gw.Call(context.Background(), StagePolish, "prompt", "")
	if err == nil {
		t.Fatal("expected error when no Anthropic API key is configured")
	}
}

func TestGateway_Call_UsageHookNotCalledOnError(t *testing.T) {
	called := false
	gw := NewGateway(&config.Stages{
		Generate: config.StageBinding{Provider: "google", Model: "gemini-2.5-flash"},
	}, func(Stage, string, string, Usage, time.Duration) { called = true })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := gw.Call(ctx, StageGenerate, "prompt", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if called {
		t.Error("usage hook should not fire when the call never reaches a provider")
	}
}

func TestIsTransientClassification(t *testing.T) {
	wrapped := errors.New("boom")
	if core.IsTransient(wrapped) {
		t.Error("a bare error should not classify as transient")
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		code       int
		wantFatal  bool
		wantTransi bool
	}{
		{400, true, false},
		{401, true, false},
		{404, true, false},
		{429, false, true},
		{500, false, true},
		{503, false, true},
	}
	for _, tc := range cases {
		err := classifyHTTPStatus(tc.code)
		if got := core.IsFatal(err); got != tc.wantFatal {
			t.Errorf("status %d: IsFatal = %v, want %v", tc.code, got, tc.wantFatal)
		}
		if got := core.IsTransient(err); got != tc.wantTransi {
			t.Errorf("status %d: IsTransient = %v, want %v", tc.code, got, tc.wantTransi)
		}
	}
}

func TestWireError_UnrecognizedErrorFallsBackToTransient(t *testing.T) {
	err := wireError(errors.New("connection reset"))
	if !core.IsTransient(err) {
		t.Error("an error that doesn't match either SDK's typed error should default to transient")
	}
	if core.IsFatal(err) {
		t.Error("an unrecognized transport error must never be classified fatal")
	}
}
