package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/mdobak/go-xerrors"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: WARN, Output: &buf})

	l.Infof("hidden %d", 1)
	l.Warnf("shown %d", 2)
	l.Errorf("failed %s", "x")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("INFO message should be filtered at WARN level")
	}
	if !strings.Contains(out, "[WARN] shown 2") {
		t.Errorf("Missing warning in %q", out)
	}
	if !strings.Contains(out, "[ERROR] failed x") {
		t.Errorf("Errorf should log at ERROR level, got %q", out)
	}
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: DEBUG, Output: &buf}).WithPrefix("[ingest]").WithPrefix("[worker]")
	l.Debugf("hello")
	if !strings.Contains(buf.String(), "[ingest] [worker] hello") {
		t.Errorf("Unexpected output %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{"debug": DEBUG, "INFO": INFO, "warning": WARN, "Error": ERROR, "off": OFF}
	for in, want := range tests {
		got, ok := ParseLevel(in)
		if !ok || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, ok, want)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Error("Expected unknown level to be rejected")
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Errorf("nothing")
	if l.level != OFF {
		t.Errorf("Expected OFF level, got %v", l.level)
	}
}

func TestSetters(t *testing.T) {
	var first, second bytes.Buffer
	l := New(Config{Level: ERROR, Output: &first, Colorize: true})

	l.SetColorize(false)
	l.SetLevel(DEBUG)
	l.Debugf("one")
	if !strings.Contains(first.String(), "[DEBUG] one") {
		t.Errorf("Expected uncolored debug line, got %q", first.String())
	}

	child := l.WithPrefix("[child]")
	l.SetOutput(&second)
	child.Infof("two")
	if !strings.Contains(second.String(), "[child] two") {
		t.Errorf("Child should follow the shared output, got %q", second.String())
	}
	if strings.Contains(first.String(), "two") {
		t.Error("Old output should no longer receive lines")
	}
}

func TestLogErrorStack(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: INFO, Output: &buf})

	l.LogError("open failed", xerrors.New(errors.New("disk gone")))
	out := buf.String()
	if !strings.Contains(out, "[ERROR] open failed") || !strings.Contains(out, "disk gone") {
		t.Errorf("Missing message in %q", out)
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Errorf("Expected the wrap site in the stack, got %q", out)
	}

	buf.Reset()
	l.LogError("nothing", nil)
	if buf.Len() != 0 {
		t.Errorf("Expected no output for nil error, got %q", buf.String())
	}
}
