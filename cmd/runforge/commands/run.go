package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/runforge/runforge/internal/eventbus"
	"github.com/runforge/runforge/internal/model"
	"github.com/runforge/runforge/internal/utils/env"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	command    []string
	workingDir string
	envSpecs   []string
	timeout    time.Duration
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run a command, streaming its output live.")
	c.Cmd.Arg("command", "Command to run (use -- before command).").Required().StringsVar(&c.command)
	c.Cmd.Flag("workdir", "Working directory for command execution.").Short('w').StringVar(&c.workingDir)
	c.Cmd.Flag("env", "Environment variables (KEY=VALUE or KEY from current environment). Can be repeated.").Short('e').StringsVar(&c.envSpecs)
	c.Cmd.Flag("timeout", "Maximum wall-clock time the command may run (0 disables it).").Short('t').DurationVar(&c.timeout)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	cmdEnv, err := env.ParseSpecs(c.envSpecs)
	if err != nil {
		return fmt.Errorf("invalid --env value: %w", err)
	}

	eng, err := c.rootCmd.newEngine()
	if err != nil {
		return err
	}
	defer eng.Cleanup()

	st, err := eng.Stream(ctx, strings.Join(c.command, " "), model.ExecutionOptions{
		WorkingDir: c.workingDir,
		Env:        cmdEnv,
		Timeout:    c.timeout,
	})
	if err != nil {
		return fmt.Errorf("could not start command: %w", err)
	}

	// Relay output as it arrives, the terminal event carries the final result.
	var result *model.ExecutionResult
	for ev := range st.Events {
		switch ev.Type {
		case eventbus.TypeOutput:
			w := c.rootCmd.Stdout
			if ev.Stream == eventbus.StreamStderr {
				w = c.rootCmd.Stderr
			}
			_, _ = w.Write(ev.Chunk)

		case eventbus.TypeComplete:
			result = ev.Result

		case eventbus.TypeError:
			return fmt.Errorf("execution failed: %w", ev.Err)
		}
	}

	if result == nil {
		return fmt.Errorf("execution ended without a result")
	}

	logger.Debugf("Command finished in %s with exit code %d", result.Duration, result.ExitCode)

	// Exit with the command's exit code. -1 means the process never exited on
	// its own (timeout or cancellation).
	switch {
	case result.ExitCode > 0:
		os.Exit(result.ExitCode)
	case result.ExitCode < 0:
		os.Exit(1)
	}

	return nil
}
