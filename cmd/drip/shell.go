package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// NewShellCommand .
func NewShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "shell",
		Short:   "Start an interactive drip shell",
		GroupID: gAdvanced,
		Long: `Start an interactive shell that runs drip commands against the daemon.

Global flags given to the shell, such as --daemon-addr, apply to every
command typed into it. Type 'help' for usage and 'exit' to leave.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInteractiveShell("drip> ")
		},
	}
}

func runInteractiveShell(prompt string) error {
	historyFile := filepath.Join(os.TempDir(), "drip-shell.history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("Interactive drip shell. Type 'help' for usage, 'exit' to quit.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}

		if done := runShellLine(os.Stdout, line); done {
			return nil
		}
	}
}

// runShellLine handles a single line of shell input and reports whether the
// shell should exit.
func runShellLine(out io.Writer, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	switch line {
	case "exit", "quit":
		fmt.Fprintln(out, "Bye!")
		return true
	case "help":
		printShellHelp(out)
		return false
	}

	tokens, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(out, "parse error: %v\n", err)
		return false
	}
	if len(tokens) == 0 {
		return false
	}

	switch tokens[0] {
	case "log":
		if err := handleShellLog(out, tokens[1:]); err != nil {
			fmt.Fprintf(out, "log: %v\n", err)
		}
		return false
	case "shell":
		fmt.Fprintln(out, "Already in the drip shell. Type a command or 'exit' to quit.")
		return false
	case "daemon":
		fmt.Fprintln(out, "The daemon cannot be run from the shell. Use 'drip daemon' instead.")
		return false
	}

	if err := executeArgs(out, tokens); err != nil {
		handleCmdError(err)
	}
	return false
}

func executeArgs(out io.Writer, args []string) error {
	root := NewCommand()
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	return root.Execute()
}

func printShellHelp(out io.Writer) {
	fmt.Fprintln(out, `Commands are the same as on the command line, without the leading 'drip':
  status                    Show watering status
  start 1hr|2hrs|3hrs       Start watering
  stop                      Stop watering
  schedule '0 6 * * *'      Set the watering schedule
  watch                     Follow events (Ctrl-C to stop)

Shell built-ins:
  log --level debug         Change the log level for this session
  log --show                Show the current log level
  help                      Show this help
  exit, quit                Leave the shell`)
}

// handleShellLog changes the session log level. The level is kept in
// logLevel so later commands pick it up as their default.
func handleShellLog(out io.Writer, args []string) error {
	fs := pflag.NewFlagSet("log", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		level string
		show  bool
	)
	fs.StringVar(&level, "level", "", "log level (trace, debug, info, warn, error)")
	fs.BoolVarP(&show, "show", "s", false, "show the current log level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if level == "" && fs.NArg() == 1 {
		level = fs.Arg(0)
	}

	switch {
	case level != "":
		if _, err := logrus.ParseLevel(level); err != nil {
			return err
		}
		logLevel = level
		if err := setupLogger(); err != nil {
			return err
		}
		fmt.Fprintf(out, "log level: %s\n", logLevel)
		return nil
	case show:
		fmt.Fprintf(out, "log level: %s\n", logLevel)
		return nil
	}

	return errors.New("usage: log --level <level> | log --show")
}
