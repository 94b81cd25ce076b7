package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/runforge/runforge/internal/execution/local"
	"github.com/runforge/runforge/internal/log"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug       bool
	NoLog       bool
	NoColor     bool
	LoggerType  string
	Shell       string
	GraceWindow time.Duration

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)
	app.Flag("shell", "Shell used to run commands.").Envar("RUNFORGE_SHELL").Default("/bin/sh").StringVar(&c.Shell)
	app.Flag("grace", "How long a terminated process gets before being killed.").Default("5s").DurationVar(&c.GraceWindow)

	return c
}

// newEngine creates the local execution engine from the global configuration.
func (c *RootCommand) newEngine() (*local.Engine, error) {
	eng, err := local.NewEngine(local.EngineConfig{
		Shell:       c.Shell,
		GraceWindow: c.GraceWindow,
		Logger:      c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create engine: %w", err)
	}
	return eng, nil
}
