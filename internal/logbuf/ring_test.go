package logbuf

import (
	"testing"
)

func TestRingBasicWrite(t *testing.T) {
	r := New(5)
	r.Write([]byte("line 1\nline 2\nline 3\n"))

	lines := r.Lines()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "line 1" || lines[1] != "line 2" || lines[2] != "line 3" {
		t.Errorf("unexpected lines: %v", lines)
	}
}

func TestRingOverflow(t *testing.T) {
	r := New(3)
	r.Write([]byte("a\nb\nc\nd\ne\n"))

	lines := r.Lines()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "c" || lines[1] != "d" || lines[2] != "e" {
		t.Errorf("expected [c d e], got %v", lines)
	}
}

func TestRingPartialWrites(t *testing.T) {
	r := New(5)
	r.Write([]byte("hel"))
	r.Write([]byte("lo world\n"))
	r.Write([]byte("second line\n"))

	lines := r.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "hello world" {
		t.Errorf("expected 'hello world', got %q", lines[0])
	}
}

func TestRingUnterminatedLastLine(t *testing.T) {
	r := New(3)
	r.Write([]byte("a\nb\nc\nTraceback (most recent call last)"))

	lines := r.Lines()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != "b" || lines[2] != "Traceback (most recent call last)" {
		t.Errorf("expected pending line last, got %v", lines)
	}
}

func TestRingCarriageReturns(t *testing.T) {
	r := New(5)
	r.Write([]byte("one\r\ntwo\r\n"))

	lines := r.Lines()
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Errorf("expected [one two], got %q", lines)
	}
}

func TestRingLast(t *testing.T) {
	r := New(10)
	r.Write([]byte("a\nb\nc\nd\ne\n"))

	last := r.Last(3)
	if len(last) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(last))
	}
	if last[0] != "c" || last[1] != "d" || last[2] != "e" {
		t.Errorf("expected [c d e], got %v", last)
	}
}

func TestRingLastMoreThanAvailable(t *testing.T) {
	r := New(10)
	r.Write([]byte("a\nb\n"))

	last := r.Last(5)
	if len(last) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(last))
	}
}

func TestRingTail(t *testing.T) {
	r := New(10)
	r.Write([]byte("a\nb\nc\n"))

	if got := r.Tail(2); got != "b\nc" {
		t.Errorf("Tail(2) = %q", got)
	}
}

func TestRingEmpty(t *testing.T) {
	r := New(5)
	lines := r.Lines()
	if len(lines) != 0 {
		t.Errorf("expected empty, got %v", lines)
	}
	if r.Tail(3) != "" {
		t.Errorf("expected empty tail")
	}
}

func TestRingNonPositiveSize(t *testing.T) {
	r := New(0)
	r.Write([]byte("a\nb\n"))
	if lines := r.Lines(); len(lines) != 1 || lines[0] != "b" {
		t.Errorf("expected [b], got %v", lines)
	}
}
