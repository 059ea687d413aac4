package tasktree_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/tasktree"
	"github.com/aretw0/tasktree/pkg/dsl"
)

// ExampleNew shows a graph built in code and played to completion.
func ExampleNew() {
	b := dsl.New("greet")
	b.Script("name", `env.Set("who", "world")`).Outputs("who")
	b.Script("hello", `
		who, err := env.Input("who")
		if err != nil {
			return err
		}
		env.Printf("hello %v", who)`).Inputs("who")

	root, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	eng, err := tasktree.New("", tasktree.WithGraph(root))
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	st, err := eng.Play(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	for _, n := range st.Nodes {
		fmt.Printf("%s %s\n", n.Name, n.State)
	}
	// Output:
	// greet complete
	// name complete
	// hello complete
}
