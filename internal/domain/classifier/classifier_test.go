package classifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainmodel "llm-gateway/internal/domain/model"
)

type fakeAnalyzer struct {
	mu     sync.Mutex
	calls  int
	answer string
	err    error
}

func (f *fakeAnalyzer) AnalyzeText(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.answer, f.err
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestClassifyGreetingFastPath(t *testing.T) {
	c := New(nil)
	got := c.Classify(context.Background(), "hello there", nil)
	if got.Type != domainmodel.TypeConversational {
		t.Fatalf("expected conversational, got %s", got.Type)
	}
	if got.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %v", got.Confidence)
	}
}

func TestClassifyTechnicalFastPath(t *testing.T) {
	c := New(nil)
	got := c.Classify(context.Background(), "my code throws an error, here is the stack trace:\n```\npanic: nil\n```", nil)
	if got.Type != domainmodel.TypeTechnical {
		t.Fatalf("expected technical, got %s", got.Type)
	}
	if got.Confidence <= 0.7 {
		t.Fatalf("expected fast-path confidence, got %v", got.Confidence)
	}
	if len(got.MatchedKeywords) == 0 {
		t.Fatal("expected matched keywords to be recorded")
	}
}

func TestClassifyEmptyPrompt(t *testing.T) {
	c := New(nil)
	got := c.Classify(context.Background(), "   ", nil)
	if got.Type != domainmodel.TypeConversational || got.Confidence != 0.5 {
		t.Fatalf("expected {conversational, 0.5}, got {%s, %v}", got.Type, got.Confidence)
	}
}

func TestClassifySlowPathUsesAnalyzer(t *testing.T) {
	analyzer := &fakeAnalyzer{answer: "```json\n{\"type\":\"research\",\"confidence\":0.88,\"reasoning\":\"asks for sources\",\"secondaryTypes\":[\"educational\"],\"complexity\":\"medium\"}\n```"}
	c := New(analyzer)

	got := c.Classify(context.Background(), "tell me about dolphins", nil)
	if analyzer.callCount() != 1 {
		t.Fatalf("expected one analyzer call, got %d", analyzer.callCount())
	}
	if got.Type != domainmodel.TypeResearch || got.Confidence != 0.88 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if len(got.SecondaryTypes) != 1 || got.SecondaryTypes[0] != domainmodel.TypeEducational {
		t.Fatalf("unexpected secondary types: %v", got.SecondaryTypes)
	}
	if got.Complexity != domainmodel.ComplexityMedium {
		t.Fatalf("unexpected complexity: %s", got.Complexity)
	}
}

func TestClassifyMalformedAnalyzerOutputFallsBack(t *testing.T) {
	analyzer := &fakeAnalyzer{answer: "I think this is probably about dolphins."}
	c := New(analyzer)

	got := c.Classify(context.Background(), "tell me about dolphins", nil)
	if got == nil {
		t.Fatal("expected a fallback result")
	}
	if !got.Type.IsValid() {
		t.Fatalf("fallback produced invalid type %q", got.Type)
	}
	if got.Confidence < 0.3 {
		t.Fatalf("expected floored confidence, got %v", got.Confidence)
	}
}

func TestClassifyAnalyzerErrorFallsBack(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("analyzer unavailable")}
	c := New(analyzer)

	got := c.Classify(context.Background(), "tell me about dolphins", nil)
	if got == nil || !got.Type.IsValid() {
		t.Fatalf("expected a valid fallback result, got %+v", got)
	}
}

func TestClassifyCachesResult(t *testing.T) {
	analyzer := &fakeAnalyzer{answer: `{"type":"creative","confidence":0.7,"complexity":"low"}`}
	c := New(analyzer)

	first := c.Classify(context.Background(), "tell me about dolphins", nil)
	second := c.Classify(context.Background(), "Tell me   about dolphins", nil)
	if analyzer.callCount() != 1 {
		t.Fatalf("expected cache hit on normalized prompt, analyzer ran %d times", analyzer.callCount())
	}
	if first != second {
		t.Fatal("expected the cached result instance")
	}
}

func TestClassifyCacheExpires(t *testing.T) {
	analyzer := &fakeAnalyzer{answer: `{"type":"creative","confidence":0.7,"complexity":"low"}`}
	c := New(analyzer, WithCacheTTL(15*time.Millisecond))

	c.Classify(context.Background(), "tell me about dolphins", nil)
	time.Sleep(30 * time.Millisecond)
	c.Classify(context.Background(), "tell me about dolphins", nil)
	if analyzer.callCount() != 2 {
		t.Fatalf("expected recomputation after TTL, analyzer ran %d times", analyzer.callCount())
	}
}

func TestClassifyHistoryChangesFingerprint(t *testing.T) {
	analyzer := &fakeAnalyzer{answer: `{"type":"creative","confidence":0.7,"complexity":"low"}`}
	c := New(analyzer)

	c.Classify(context.Background(), "tell me about dolphins", nil)
	c.Classify(context.Background(), "tell me about dolphins", []Turn{{Role: "user", Content: "we were discussing whales"}})
	if analyzer.callCount() != 2 {
		t.Fatalf("expected distinct cache keys per history, analyzer ran %d times", analyzer.callCount())
	}
}

func TestClassifyContextOverride(t *testing.T) {
	c := New(nil)
	history := []Turn{
		{Role: "user", Content: "my code has a bug, the function throws an error on deploy"},
		{Role: "assistant", Content: "```go\nfunc main() {}\n```"},
	}
	got := c.Classify(context.Background(), "and the second one?", history)
	if got.Type != domainmodel.TypeTechnical {
		t.Fatalf("expected context override to technical, got %s", got.Type)
	}
	// Damped: an override never reaches the fast-path score it came from.
	if got.Confidence > 0.8*0.95 {
		t.Fatalf("override confidence not damped: %v", got.Confidence)
	}
}

func TestFingerprintTruncated(t *testing.T) {
	long := ""
	for i := 0; i < 40; i++ {
		long += "dolphins "
	}
	key := Fingerprint(long, nil)
	if len(key) > 100 {
		t.Fatalf("fingerprint too long: %d", len(key))
	}
}

func TestSecondaryTypesExcludePrimary(t *testing.T) {
	c := New(nil)
	got := c.Classify(context.Background(), "why does my code throw an error? compare the two approaches and fix the problem", nil)
	for _, s := range got.SecondaryTypes {
		if s == got.Type {
			t.Fatalf("secondary types contain the primary type %s", s)
		}
	}
	if len(got.SecondaryTypes) > 2 {
		t.Fatalf("too many secondary types: %v", got.SecondaryTypes)
	}
}
