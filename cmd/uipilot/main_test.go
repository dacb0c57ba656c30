package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRoot replaces the command tree with one that records invocations.
func stubRoot(t *testing.T, calls *[][]string) {
	t.Helper()
	orig := newRootCommand
	newRootCommand = func() *cobra.Command {
		root := &cobra.Command{Use: "uipilot", SilenceUsage: true, SilenceErrors: true}
		root.AddCommand(&cobra.Command{
			Use: "echo",
			RunE: func(cmd *cobra.Command, args []string) error {
				*calls = append(*calls, args)
				cmd.Println(strings.Join(args, " "))
				return nil
			},
		})
		root.AddCommand(&cobra.Command{
			Use: "boom",
			Run: func(*cobra.Command, []string) { panic("kaboom") },
		})
		return root
	}
	t.Cleanup(func() { newRootCommand = orig })
}

func TestRunShell_ExecutesLinesUntilExit(t *testing.T) {
	var calls [][]string
	stubRoot(t, &calls)

	in := strings.NewReader("echo one\n\n  echo two three  \nexit\necho never\n")
	var out, errOut bytes.Buffer

	require.NoError(t, runShell(context.Background(), in, &out, &errOut))

	assert.Equal(t, [][]string{{"one"}, {"two", "three"}}, calls)
	assert.Contains(t, out.String(), "uipilot > ")
	assert.Contains(t, out.String(), "two three")
	assert.Empty(t, errOut.String())
}

func TestRunShell_StopsAtEOFAndQuit(t *testing.T) {
	for _, input := range []string{"echo a", "echo a\nquit\necho b"} {
		var calls [][]string
		stubRoot(t, &calls)
		var out, errOut bytes.Buffer

		require.NoError(t, runShell(context.Background(), strings.NewReader(input), &out, &errOut))
		assert.Equal(t, [][]string{{"a"}}, calls)
	}
}

func TestExecuteInteractiveCommand_RecoversPanic(t *testing.T) {
	var calls [][]string
	stubRoot(t, &calls)
	var out, errOut bytes.Buffer

	assert.NotPanics(t, func() {
		executeInteractiveCommand(context.Background(), "boom", &out, &errOut)
	})
	assert.Contains(t, errOut.String(), "Command panicked: kaboom")
}

func mockExitAndWrite(t *testing.T, writeErr error) (exitCode *int, written *[]byte) {
	t.Helper()
	code := -1
	var data []byte

	origExit, origWrite := osExit, osWriteFile
	osExit = func(c int) { code = c }
	osWriteFile = func(name string, b []byte, perm os.FileMode) error {
		assert.Equal(t, panicLogFile, name)
		data = b
		return writeErr
	}
	t.Cleanup(func() { osExit, osWriteFile = origExit, origWrite })
	return &code, &data
}

func TestHandlePanic_WritesLog(t *testing.T) {
	code, written := mockExitAndWrite(t, nil)

	func() {
		defer handlePanic()
		panic("screen melted")
	}()

	assert.Equal(t, 2, *code)
	assert.True(t, strings.HasPrefix(string(*written), "panic: screen melted"))
	assert.Contains(t, string(*written), "goroutine")
}

func TestHandlePanic_WriteFailure(t *testing.T) {
	code, _ := mockExitAndWrite(t, errors.New("read-only filesystem"))

	func() {
		defer handlePanic()
		panic("again")
	}()

	assert.Equal(t, 1, *code)
}

func TestHandlePanic_NoPanic(t *testing.T) {
	code, written := mockExitAndWrite(t, nil)

	func() {
		defer handlePanic()
	}()

	assert.Equal(t, -1, *code)
	assert.Nil(t, *written)
}
