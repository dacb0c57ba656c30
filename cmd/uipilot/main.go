// File: cmd/uipilot/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/xkilldash9x/uipilot/cmd"
	"github.com/xkilldash9x/uipilot/internal/observability"
)

const panicLogFile = "panic.log"

const banner = `
  _   _ _       _ _       _
 | | | (_)_ __ (_) | ___ | |_
 | | | | | '_ \| | |/ _ \| __|
 | |_| | | |_) | | | (_) | |_
  \___/|_| .__/|_|_|\___/ \__|
         |_|

 Type "run <command>" to start, "help" for more, "exit" to leave.

`

// Define function variables for dependency injection/mocking in tests.
var (
	osWriteFile = os.WriteFile
	// Allows mocking os.Exit in tests.
	osExit = os.Exit
	// Builds the command tree used for each interactive line.
	newRootCommand = cmd.NewRootCommand
)

func main() {
	defer handlePanic()

	// Interrupts cancel the active run; the loop's Stop path cleans up.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				osExit(0)
			} else {
				osExit(1)
			}
		}
		return
	}

	fmt.Print(banner)
	if err := runShell(ctx, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(1)
		return
	}
	fmt.Println("Exiting uipilot.")
}

// runShell reads commands line by line until EOF, exit or quit.
func runShell(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "uipilot > ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		executeInteractiveCommand(ctx, line, out, errOut)
	}
	return scanner.Err()
}

// executeInteractiveCommand runs one shell line on a fresh command tree so
// flags from one line never leak into the next.
func executeInteractiveCommand(ctx context.Context, line string, out, errOut io.Writer) {
	rootCmd := newRootCommand()
	rootCmd.SetArgs(strings.Fields(line))
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(errOut, "Error: Command panicked: %v\n", r)
		}
	}()
	// Cobra already printed the error; the shell keeps going.
	_ = rootCmd.ExecuteContext(ctx)
}

// handlePanic records a crash to panicLogFile before exiting.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(1)
		return
	}

	fmt.Fprintf(os.Stderr, "\nuipilot crashed. Details logged to %s\n", panicLogFile)
	osExit(2)
}
