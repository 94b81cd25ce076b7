package printer

import "github.com/runforge/runforge/internal/model"

// Printer knows how to print task information in different formats.
type Printer interface {
	PrintTaskList(tasks []model.BackgroundTask) error
	PrintTask(task model.BackgroundTask) error
	PrintStats(stats model.TaskStats) error
	PrintMessage(msg string) error
}
