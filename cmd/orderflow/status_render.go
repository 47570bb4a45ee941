package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type level int

const (
	levelInfo level = iota
	levelOK
	levelWarn
	levelError
)

var levelStyles = map[level]struct {
	label string
	color string
}{
	levelInfo:  {"INFO", "\x1b[34m"},
	levelOK:    {"OK", "\x1b[32m"},
	levelWarn:  {"WARN", "\x1b[33m"},
	levelError: {"ERROR", "\x1b[31m"},
}

const ansiReset = "\x1b[0m"

// statusPrinter writes aligned "label: [LEVEL] detail" lines, colored only
// when the destination is a terminal.
type statusPrinter struct {
	out   io.Writer
	color bool
	width int
}

func newStatusPrinter(out io.Writer) *statusPrinter {
	return &statusPrinter{out: out, color: isTerminal(out), width: 24}
}

func (p *statusPrinter) section(title string) {
	heading := "== " + strings.TrimSpace(title) + " =="
	p.println(levelInfo, heading)
	p.println(levelInfo, strings.Repeat("-", len(heading)))
}

func (p *statusPrinter) line(label string, lvl level, detail string) {
	style := levelStyles[lvl]
	text := fmt.Sprintf("  %-*s [%s]", p.width, label+":", style.label)
	if detail != "" {
		text += " " + detail
	}
	p.println(lvl, text)
}

func (p *statusPrinter) blank() {
	fmt.Fprintln(p.out)
}

func (p *statusPrinter) println(lvl level, text string) {
	if p.color {
		text = levelStyles[lvl].color + text + ansiReset
	}
	fmt.Fprintln(p.out, text)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
