package cmd

import (
	"encoding/json"
	"testing"
)

func TestContainsFold(t *testing.T) {
	tests := []struct {
		s, substr string
		want      bool
	}{
		{"org.mozilla.firefox", "Firefox", true},
		{"org.mozilla.firefox", "firefox", true},
		{"Alacritty", "ala", true},
		{"Alacritty", "kitty", false},
		{"", "x", false},
		{"anything", "", true},
	}
	for _, tt := range tests {
		if got := containsFold(tt.s, tt.substr); got != tt.want {
			t.Errorf("containsFold(%q, %q) = %v, want %v", tt.s, tt.substr, got, tt.want)
		}
	}
}

func TestWatchEvent_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(watchEvent{Type: "snapshot", TS: 100})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"snapshot","ts":100}`
	if string(data) != want {
		t.Errorf("snapshot event = %s, want %s", data, want)
	}

	data, err = json.Marshal(watchEvent{Type: "focus", TS: 100, App: "a", Title: "t"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want = `{"type":"focus","ts":100,"app":"a","title":"t"}`
	if string(data) != want {
		t.Errorf("focus event = %s, want %s", data, want)
	}
}
