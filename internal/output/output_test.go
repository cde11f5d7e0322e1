package output

import (
	"os"
	"strings"
	"testing"

	"github.com/wayfocus/wayfocus/internal/model"
)

// capture runs fn with stdout redirected and returns what it printed.
func capture(t *testing.T, fn func() error) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	if err := fn(); err != nil {
		t.Fatalf("print: %v", err)
	}
	_ = w.Close()
	buf := make([]byte, 4096)
	n, _ := r.Read(buf)
	return string(buf[:n])
}

func TestPrintYAML_Window(t *testing.T) {
	out := capture(t, func() error {
		return PrintYAML(model.Window{ID: 7, App: "org.example.editor", Activated: true})
	})
	for _, want := range []string{"id: 7", "app: org.example.editor", "activated: true"} {
		if !strings.Contains(out, want) {
			t.Errorf("yaml output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "title") {
		t.Errorf("empty title not omitted:\n%s", out)
	}
}

func TestPrintJSON_Compact(t *testing.T) {
	out := capture(t, func() error {
		return PrintJSON(model.FocusEvent{App: "a", Title: "t", Focused: true}, false)
	})
	want := `{"app":"a","title":"t","focused":true}` + "\n"
	if out != want {
		t.Errorf("json output = %q, want %q", out, want)
	}
}

func TestPrint_FormatSelection(t *testing.T) {
	origFormat := OutputFormat
	defer func() { OutputFormat = origFormat }()

	OutputFormat = FormatJSON
	out := capture(t, func() error { return Print(model.Window{ID: 1}) })
	if !strings.HasPrefix(out, "{") {
		t.Errorf("FormatJSON produced %q", out)
	}

	OutputFormat = FormatYAML
	out = capture(t, func() error { return Print(model.Window{ID: 1}) })
	if !strings.Contains(out, "id: 1") {
		t.Errorf("FormatYAML produced %q", out)
	}

	OutputFormat = Format("xml")
	if err := Print(model.Window{}); err == nil {
		t.Error("unsupported format did not error")
	}
}
