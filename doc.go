/*
Package tasktree executes task graphs: trees of nodes visited depth-first, where
each node runs a script, converses with a language model, asks the operator for
help, or asks a model to break the work into a new subtree.

# Concept

A graph is a tree of nodes. Containers group children; every other node does one
piece of work and either completes or fails with a message. The engine keeps a
cursor on the active node and a scoped variable environment: a variable lives as
long as the node that first wrote it is on the path from the root to the cursor.

Model nodes stream their response, split it into conversational text and tagged
artifacts (file, diff and task_graph), write file artifacts into the project, and
expose the response to later nodes. A disaggregator node decodes a task_graph
artifact and grafts it as its own children.

# Usage

	eng, err := tasktree.New("release.yaml",
		tasktree.WithStreamer(llm.NewClient(backends)),
		tasktree.WithProject(proj),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	status, err := eng.Play(ctx)

Graphs can also be built in code with package dsl, and driven interactively
with package runner.
*/
package tasktree
