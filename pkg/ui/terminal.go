// Package ui prints the command line's human-facing output. Logs go through
// pkg/logger; this package only formats results for the operator.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// Banner is printed by long-running commands
const Banner = `
  _  _ _  _ _  _ ____ ____ _  _ ____ ____ ___
  |  | |_/  |__| |__| |__/ |  | |___ [__   |
   \/  | \_ |  | |  | |  \  \/  |___ ___]  |
`

var (
	mu      sync.Mutex
	out     io.Writer = os.Stdout
	colored           = term.IsTerminal(int(os.Stdout.Fd()))
	quiet   bool
)

// SetOutput redirects all output, mainly for tests. Colors are disabled.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	colored = false
}

// SetColor forces colors on or off
func SetColor(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	colored = enabled
}

// SetQuietMode suppresses everything except errors
func SetQuietMode(q bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = q
}

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

func colorize(colorString string) func(string) string {
	return func(text string) string {
		mu.Lock()
		on := colored
		mu.Unlock()
		if !on {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

func write(force bool, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if quiet && !force {
		return
	}
	fmt.Fprintf(out, format, args...)
}

// PrintBanner prints the banner
func PrintBanner() {
	write(false, "%s\n", Cyan(Banner))
}

// PrintError prints an error message in red; it is shown even in quiet mode
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		write(true, "%s\n", Red(msg+": "+fmt.Sprintf("%v", args[0])))
		return
	}
	write(true, "%s\n", Red(msg))
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	write(false, "%s\n", Green(msg))
}

// PrintInfo prints a label and its value
func PrintInfo(label string, value interface{}) {
	write(false, "%s: %s\n", Cyan(label), Yellow(fmt.Sprint(value)))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		write(false, "%s\n", Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
		return
	}
	write(false, "%s\n", Yellow(msg))
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	write(false, "%s\n", Magenta(msg))
}

// Println prints plain text
func Println(args ...interface{}) {
	write(false, "%s\n", fmt.Sprint(args...))
}
