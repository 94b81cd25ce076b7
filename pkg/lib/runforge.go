package lib

import (
	"context"
	"fmt"
	"time"

	"github.com/runforge/runforge/internal/execution/local"
	"github.com/runforge/runforge/internal/storage/memory"
	"github.com/runforge/runforge/internal/task"
	"github.com/runforge/runforge/pkg/lib/log"
)

// Config configures the SDK client.
//
// All fields are optional and have sensible defaults. At minimum, an empty
// Config{} runs commands through /bin/sh with a 5 second termination grace
// window and keeps the last 500 finished tasks.
type Config struct {
	// Shell is the shell used to run commands.
	// Default: /bin/sh.
	Shell string

	// GraceWindow is how long a terminated process gets between SIGTERM and
	// SIGKILL. Default: 5s.
	GraceWindow time.Duration

	// MaxFinishedTasks bounds the finished-task history; the oldest finished
	// tasks are evicted on overflow. Zero means the default (500), negative
	// means unbounded.
	MaxFinishedTasks int

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger
}

// Client is the main SDK entry point for running commands and background
// tasks programmatically.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use.
type Client struct {
	engine *local.Engine
	tasks  *task.Service
	logger log.Logger
}

// New creates a new SDK client.
//
// All state is in-memory and dies with the client. The caller must call
// [Client.Close] when done so every still-running process is killed.
// Typically used with defer:
//
//	client, err := lib.New(lib.Config{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Noop
	}

	engine, err := local.NewEngine(local.EngineConfig{
		Shell:       cfg.Shell,
		GraceWindow: cfg.GraceWindow,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create engine: %w", err)
	}

	repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	tasks, err := task.NewService(task.ServiceConfig{
		Engine:           engine,
		Repository:       repo,
		Logger:           logger,
		MaxFinishedTasks: cfg.MaxFinishedTasks,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create task service: %w", err)
	}

	return &Client{
		engine: engine,
		tasks:  tasks,
		logger: logger,
	}, nil
}

// Close kills every still-running process and discards all bookkeeping.
// After Close returns, the client must not be used.
func (c *Client) Close() error {
	return c.tasks.Cleanup(context.Background())
}
