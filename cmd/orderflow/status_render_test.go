package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestStatusPrinterPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := newStatusPrinter(&buf)
	p.section("Orders")
	p.line("Ready for work", levelInfo, "3")
	p.line("Awaiting approval", levelWarn, "")

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no ANSI codes for a non-terminal writer, got %q", out)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), out)
	}
	if lines[0] != "== Orders ==" || lines[1] != strings.Repeat("-", len("== Orders ==")) {
		t.Fatalf("unexpected section header: %q", lines[:2])
	}
	requireContains(t, lines[2], "[INFO] 3")
	if !strings.HasSuffix(lines[3], "[WARN]") {
		t.Fatalf("expected bare level label, got %q", lines[3])
	}
}

func TestRenderTableAlignsColumns(t *testing.T) {
	out := renderTable([]string{"Status", "Orders"}, [][]string{{"TRANSCRIBED", "12"}, {"DELIVERED"}},
		[]columnAlignment{alignLeft, alignRight})
	requireContains(t, out, "TRANSCRIBED")
	requireContains(t, out, "12")
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}
