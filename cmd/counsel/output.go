package main

import (
	"os"

	domain "counsel/internal/domain/task"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func statusLabel(status domain.Status) string {
	switch status {
	case domain.StatusCompleted:
		return green(string(status))
	case domain.StatusRunning, domain.StatusPending:
		return cyan(string(status))
	case domain.StatusAwaitingHumanInput:
		return yellow(string(status))
	default:
		return red(string(status))
	}
}
