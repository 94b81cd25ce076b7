// Package lib provides a Go SDK for running commands and background tasks
// programmatically.
//
// This package allows applications to execute shell commands with timeouts,
// live output streaming and cancellation, and to orchestrate longer-lived
// background tasks without shelling out to the runforge CLI binary.
//
// # Quick Start
//
// Create a client, run a command and inspect the result:
//
//	client, err := lib.New(lib.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	result, err := client.Execute(ctx, "echo hello", nil)
//	fmt.Println(result.Stdout, result.ExitCode)
//
// # Streaming
//
// Stream returns immediately with a live event channel. The channel carries
// one start event, output chunks as they are produced, and exactly one
// terminal event before it is closed:
//
//	stream, _ := client.Stream(ctx, "make build", nil)
//	for ev := range stream.Events {
//	    switch ev.Type {
//	    case lib.EventOutput:
//	        os.Stdout.Write(ev.Chunk)
//	    case lib.EventComplete:
//	        fmt.Println("exit code:", ev.Result.ExitCode)
//	    }
//	}
//
// # Background Tasks
//
// Background tasks wrap streamed executions with their own bookkeeping:
// status, category, progress and aggregate statistics:
//
//	taskID, _ := client.RunBackground(ctx, "go test ./...", nil)
//	// ... later ...
//	task, _ := client.GetTask(ctx, taskID)
//	fmt.Println(task.Status)
//
//	stats, _ := client.Stats(ctx)
//	fmt.Printf("%d running, %d completed\n", stats.Running, stats.Completed)
//
// # Cancellation and Timeouts
//
// Executions honor a per-execution timeout and explicit cancellation. In both
// cases the process group receives SIGTERM first and SIGKILL after a grace
// window, and the result reports exit code -1:
//
//	result, _ := client.Execute(ctx, "sleep 60", &lib.ExecuteOpts{
//	    Timeout: 2 * time.Second,
//	})
//	// result.ExitCode == -1, result.Stderr mentions the timeout.
//
// # Error Handling
//
// Command failures are never errors: non-zero exits, timeouts and spawn
// failures resolve into the returned result. The errors the SDK does return
// can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: Resource does not exist.
//   - [ErrNotValid]: Invalid input (e.g. an empty command).
//
// # Thread Safety
//
// A [Client] is safe for concurrent use from multiple goroutines. All state
// is held in memory and released by [Client.Close].
package lib
