/*
Package dsl provides a fluent builder for constructing task graphs in Go.

It is an alternative to writing the tagged-tree document by hand, useful for
graphs generated at runtime, tests, and IDE type-checking.

Example usage:

	b := dsl.New("release")

	b.Script("collect", `env.Set("version", "1.4.0")`).
		Outputs("version")

	docs := b.Group("docs")
	docs.Model("changelog", "Write the changelog for {{version}}").
		Backend("local").
		Inputs("version")
	docs.Assist("review", "Proofread CHANGELOG.md")

	root, err := b.Build()
	// ... pass root to tasktree.New(...), or use b.Loader() as a ports.GraphLoader
*/
package dsl
