/*
Package runner drives a task graph from a terminal.

It plays the graph, persists a checkpoint after every pass, and when a node
stops the traversal it asks the operator what to do: confirm that an assist node
was dealt with, retry a failed node, or quit. An interrupt (Ctrl+C, SIGTERM)
cancels the running node and leaves a checkpoint to resume from.

# Usage

	r := runner.New(eng,
		runner.WithTaskID("release-1"),
		runner.WithPrompter(runner.NewTextPrompter(os.Stdin, os.Stdout)),
	)
	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}
*/
package runner
