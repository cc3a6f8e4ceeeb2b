package connector

import "testing"

func TestNormalizeMessagesRoles(t *testing.T) {
	in := []Message{
		{Role: "System", Content: "be helpful"},
		{Role: "bot", Content: "hello"},
		{Role: "human", Content: "hi"},
		{Role: "assistant", Content: "how can I help?"},
	}
	out := NormalizeMessages(in)
	if len(out) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(out))
	}
	wantRoles := []string{RoleSystem, RoleAssistant, RoleUser, RoleAssistant}
	for i, want := range wantRoles {
		if out[i].Role != want {
			t.Fatalf("message %d: expected role %s, got %s", i, want, out[i].Role)
		}
	}
}

func TestNormalizeMessagesDropsEmpty(t *testing.T) {
	in := []Message{
		{Role: "user", Content: "  "},
		{Role: "user", Content: "real content"},
		{Role: "assistant", Content: ""},
	}
	out := NormalizeMessages(in)
	if len(out) != 1 || out[0].Content != "real content" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxAttempts != 3 {
		t.Fatalf("expected 3 total attempts (2 retries), got %d", p.MaxAttempts)
	}
	if p.BaseDelay.Milliseconds() != 500 {
		t.Fatalf("expected 500ms base delay, got %v", p.BaseDelay)
	}
}
