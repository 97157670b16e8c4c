package ui

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
)

func TestBar(t *testing.T) {
	tests := []struct {
		done, total int
		filled      int
	}{
		{0, 10, 0},
		{5, 10, 10},
		{10, 10, 20},
		{12, 10, 20},
		{0, 0, 0},
	}
	for _, tt := range tests {
		got := Bar(tt.done, tt.total)
		if n := strings.Count(got, ProgressBar); n != tt.filled {
			t.Errorf("Bar(%d, %d) filled %d cells, want %d: %s", tt.done, tt.total, n, tt.filled, got)
		}
		if !strings.HasSuffix(got, "] "+strconv.Itoa(tt.done)+"/"+strconv.Itoa(tt.total)) {
			t.Errorf("Bar(%d, %d) = %s", tt.done, tt.total, got)
		}
	}
}

func TestQuietModeKeepsErrors(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetQuietMode(true)
	t.Cleanup(func() { SetQuietMode(false) })

	PrintInfo("pass", 2)
	PrintError("run failed", "boom")

	out := buf.String()
	if strings.Contains(out, "pass") {
		t.Errorf("info printed in quiet mode: %q", out)
	}
	if !strings.Contains(out, "run failed: boom") {
		t.Errorf("error missing: %q", out)
	}
}

func TestPrintTableAligns(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	PrintTable("Store", [][2]string{{"users", "10"}, {"wall_summary", "4"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if strings.Index(lines[1], "10") != strings.Index(lines[2], "4") {
		t.Errorf("values not aligned:\n%s", buf.String())
	}
}
