package logger

import "testing"

func TestComponentChainsLeveledCalls(t *testing.T) {
	log := Component("quota")
	if log == nil {
		t.Fatal("expected a usable component logger")
	}

	// Leveled events must chain straight off the call.
	Component("quota").Info().Int("used", 1).Msg("counter advanced")
	GetLogger().Debug().Msg("root logger chains too")
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New("info", "xml"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if _, err := New("chatty", "json"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
