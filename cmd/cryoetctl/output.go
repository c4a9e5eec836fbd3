package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	okLabel   = color.New(color.FgGreen, color.Bold).SprintFunc()
	warnLabel = color.New(color.FgYellow, color.Bold).SprintFunc()
	errLabel  = color.New(color.FgRed, color.Bold).SprintFunc()
)

func printOK(format string, a ...interface{}) {
	fmt.Printf("%s %s\n", okLabel("✓"), fmt.Sprintf(format, a...))
}

func printWarn(format string, a ...interface{}) {
	fmt.Printf("%s %s\n", warnLabel("!"), fmt.Sprintf(format, a...))
}

func printError(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", errLabel("✗"), fmt.Sprintf(format, a...))
}
