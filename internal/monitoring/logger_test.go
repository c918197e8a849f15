package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	Logf("redirected %d", 1)
	if got != "redirected %d" {
		t.Errorf("custom logger not invoked, got %q", got)
	}

	// nil installs a no-op logger rather than panicking
	SetLogger(nil)
	Logf("dropped")

	called := false
	SetLogger(func(string, ...interface{}) { called = true })
	Logf("again")
	if !called {
		t.Error("replacement logger not invoked after nil reset")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should default to a usable logger")
	}
}
