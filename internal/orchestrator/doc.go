// Package orchestrator drives AI work on an event's task list.
//
// The package provides:
//   - Task selection: picking the next eligible AI task by priority, due date
//     and in-progress bias
//   - Task execution: a bounded tool-use conversation with the model for one
//     task, interpreting built-in tool calls as task state changes
//   - Run supervision: one single-threaded loop per event with cooperative
//     stop, human-in-the-loop blocking and resumption
//
// Example usage:
//
//	orch, err := orchestrator.New(store, gateway, event.ID,
//		orchestrator.WithDispatcher(registry),
//		orchestrator.WithFiles(files.NewDiskWriter(dir)),
//	)
//	if err != nil {
//		return err
//	}
//	err = orch.Start(ctx)
package orchestrator
