package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/runforge/runforge/internal/printer"
	storageio "github.com/runforge/runforge/internal/storage/io"
	"github.com/runforge/runforge/internal/storage/memory"
	"github.com/runforge/runforge/internal/task"
)

const batchPollInterval = 200 * time.Millisecond

type BatchCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	file   string
	format string
}

// NewBatchCommand returns the batch command.
func NewBatchCommand(rootCmd *RootCommand, app *kingpin.Application) *BatchCommand {
	c := &BatchCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("batch", "Run a YAML batch of tasks in the background and wait for all of them.")
	c.Cmd.Arg("file", "Path to the batch YAML file.").Required().StringVar(&c.file)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c BatchCommand) Name() string { return c.Cmd.FullCommand() }

func (c BatchCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Load the batch definition.
	dir, file := filepath.Split(c.file)
	if dir == "" {
		dir = "."
	}
	batchRepo := storageio.NewBatchYAMLRepository(os.DirFS(dir))
	specs, err := batchRepo.GetBatch(ctx, file)
	if err != nil {
		return fmt.Errorf("could not load batch: %w", err)
	}

	eng, err := c.rootCmd.newEngine()
	if err != nil {
		return err
	}
	defer eng.Cleanup()

	repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}

	svc, err := task.NewService(task.ServiceConfig{
		Engine:     eng,
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	// Start every task.
	for _, spec := range specs {
		taskID, err := svc.RunBackground(ctx, spec.Command, spec.Options)
		if err != nil {
			return fmt.Errorf("could not start task %q: %w", spec.Name, err)
		}
		logger.Debugf("Started task %q (%s)", spec.Name, taskID)
	}

	// Wait until every task has finished.
	if err := c.waitForTasks(ctx, svc); err != nil {
		return err
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	tasks, err := svc.GetTasks(ctx)
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}
	if err := p.PrintTaskList(tasks); err != nil {
		return fmt.Errorf("could not print task list: %w", err)
	}

	stats, err := svc.TaskStats(ctx)
	if err != nil {
		return fmt.Errorf("could not get task stats: %w", err)
	}
	if err := p.PrintStats(*stats); err != nil {
		return fmt.Errorf("could not print stats: %w", err)
	}

	if stats.Failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", stats.Failed, stats.Total)
	}

	return nil
}

func (c BatchCommand) waitForTasks(ctx context.Context, svc *task.Service) error {
	ticker := time.NewTicker(batchPollInterval)
	defer ticker.Stop()

	for {
		running, err := svc.RunningTasksCount(ctx)
		if err != nil {
			return fmt.Errorf("could not count running tasks: %w", err)
		}
		if running == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
