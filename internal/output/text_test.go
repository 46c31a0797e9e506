package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestTableRender(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, "APP", "STATE")
	tbl.AddRow("backend", "running")
	tbl.AddRow("frontend", "starting")
	tbl.Render()

	out := buf.String()
	for _, want := range []string{"APP", "STATE", "backend", "running", "frontend", "starting"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatterTextln(t *testing.T) {
	var buf bytes.Buffer
	f := New(&buf)
	f.Textln("app %s is %s", "backend", "running")

	if got := buf.String(); got != "app backend is running\n" {
		t.Errorf("Textln output = %q", got)
	}
}

func TestPluralizeAndCountStr(t *testing.T) {
	if got := Pluralize(1, "app", "apps"); got != "app" {
		t.Errorf("Pluralize(1) = %q", got)
	}
	if got := Pluralize(2, "app", "apps"); got != "apps" {
		t.Errorf("Pluralize(2) = %q", got)
	}
	if got := CountStr(3, "app", "apps"); got != "3 apps" {
		t.Errorf("CountStr(3) = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello world", 8); got != "hello..." {
		t.Errorf("Truncate = %q", got)
	}
}
