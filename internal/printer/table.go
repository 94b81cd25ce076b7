package printer

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/runforge/runforge/internal/model"
)

// TablePrinter prints task information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintTaskList prints tasks in a table format.
func (t *TablePrinter) PrintTaskList(tasks []model.BackgroundTask) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "ID\tSTATUS\tCATEGORY\tSTARTED\tDURATION\tCOMMAND")

	// Print rows.
	for _, task := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(task.ID),
			task.Status,
			task.Category,
			TimeAgo(task.StartedAt),
			taskDuration(task),
			truncate(task.Command, 60),
		)
	}

	return nil
}

// PrintTask prints detailed task information.
func (t *TablePrinter) PrintTask(task model.BackgroundTask) error {
	fmt.Fprintf(t.writer, "ID:          %s\n", task.ID)
	fmt.Fprintf(t.writer, "Command:     %s\n", task.Command)
	fmt.Fprintf(t.writer, "Status:      %s\n", task.Status)
	fmt.Fprintf(t.writer, "Category:    %s\n", task.Category)
	fmt.Fprintf(t.writer, "Priority:    %d\n", task.Priority)
	fmt.Fprintf(t.writer, "Started:     %s\n", FormatTimestamp(task.StartedAt))

	if task.EndedAt != nil {
		fmt.Fprintf(t.writer, "Ended:       %s\n", FormatTimestamp(*task.EndedAt))
		fmt.Fprintf(t.writer, "Duration:    %s\n", taskDuration(task))
	}

	if task.Progress != nil {
		fmt.Fprintf(t.writer, "Progress:    %.0f%% (%d/%d) %s\n",
			task.Progress.Percentage, task.Progress.Current, task.Progress.Total, task.Progress.Message)
	}

	if task.Result != nil {
		fmt.Fprintf(t.writer, "Exit code:   %d\n", task.Result.ExitCode)
		fmt.Fprintf(t.writer, "Stdout:      %s\n", FormatBytes(int64(len(task.Result.Stdout))))
		fmt.Fprintf(t.writer, "Stderr:      %s\n", FormatBytes(int64(len(task.Result.Stderr))))
	}

	return nil
}

// PrintStats prints aggregate task statistics.
func (t *TablePrinter) PrintStats(stats model.TaskStats) error {
	fmt.Fprintf(t.writer, "Total:       %d\n", stats.Total)
	fmt.Fprintf(t.writer, "Running:     %d\n", stats.Running)
	fmt.Fprintf(t.writer, "Completed:   %d\n", stats.Completed)
	fmt.Fprintf(t.writer, "Failed:      %d\n", stats.Failed)
	fmt.Fprintf(t.writer, "Cancelled:   %d\n", stats.Cancelled)
	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

// shortID keeps list output compact, details show the full ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func taskDuration(task model.BackgroundTask) string {
	if task.EndedAt == nil {
		return "-"
	}
	return task.EndedAt.Sub(task.StartedAt).Round(10 * time.Millisecond).String()
}
