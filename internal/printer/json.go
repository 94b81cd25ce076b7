package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/runforge/runforge/internal/model"
)

// JSONPrinter prints task information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// listItem represents a task in the list output (subset of fields).
type listItem struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	Status    string    `json:"status"`
	Category  string    `json:"category"`
	StartedAt time.Time `json:"started_at"`
}

// taskOutput represents the full task output.
type taskOutput struct {
	ID        string          `json:"id"`
	Command   string          `json:"command"`
	Status    string          `json:"status"`
	Category  string          `json:"category"`
	Priority  int             `json:"priority"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at"`
	Progress  *progressOutput `json:"progress,omitempty"`
	Result    *resultOutput   `json:"result,omitempty"`
}

// progressOutput represents task progress output.
type progressOutput struct {
	Message    string  `json:"message"`
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// resultOutput represents execution result output.
type resultOutput struct {
	Success    bool   `json:"success"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"duration_ms"`
}

// statsOutput represents aggregate task statistics output.
type statsOutput struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintTaskList prints tasks in JSON format with a subset of fields.
func (j *JSONPrinter) PrintTaskList(tasks []model.BackgroundTask) error {
	items := make([]listItem, len(tasks))
	for i, t := range tasks {
		items[i] = listItem{
			ID:        t.ID,
			Command:   t.Command,
			Status:    string(t.Status),
			Category:  string(t.Category),
			StartedAt: t.StartedAt.UTC(),
		}
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

// PrintTask prints detailed task information in JSON format.
func (j *JSONPrinter) PrintTask(task model.BackgroundTask) error {
	output := taskOutput{
		ID:        task.ID,
		Command:   task.Command,
		Status:    string(task.Status),
		Category:  string(task.Category),
		Priority:  task.Priority,
		StartedAt: task.StartedAt.UTC(),
	}

	if task.EndedAt != nil {
		utcTime := task.EndedAt.UTC()
		output.EndedAt = &utcTime
	}

	if task.Progress != nil {
		output.Progress = &progressOutput{
			Message:    task.Progress.Message,
			Current:    task.Progress.Current,
			Total:      task.Progress.Total,
			Percentage: task.Progress.Percentage,
		}
	}

	if task.Result != nil {
		output.Result = &resultOutput{
			Success:    task.Result.Success,
			ExitCode:   task.Result.ExitCode,
			Stdout:     task.Result.Stdout,
			Stderr:     task.Result.Stderr,
			DurationMs: task.Result.DurationMs(),
		}
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// PrintStats prints aggregate task statistics in JSON format.
func (j *JSONPrinter) PrintStats(stats model.TaskStats) error {
	output := statsOutput{
		Total:     stats.Total,
		Running:   stats.Running,
		Completed: stats.Completed,
		Failed:    stats.Failed,
		Cancelled: stats.Cancelled,
	}
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	output := messageOutput{Message: msg}
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}
