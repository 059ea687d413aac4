package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/tasktree/internal/presentation/graph"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func sample() *domain.Node {
	return &domain.Node{Name: "build", Variant: &domain.Container{}, State: domain.StateComplete, Children: []*domain.Node{
		{Name: "setup", Variant: &domain.Script{}, State: domain.StateComplete},
		{Name: "draft", Description: `say "hi"`, Variant: &domain.Model{}, State: domain.StateError, Message: "backend down"},
		{Name: "plan", Variant: &domain.Disaggregator{}, Children: []*domain.Node{
			{Name: "review", Variant: &domain.Assist{}},
		}},
	}}
}

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		overlay  *graph.Overlay
		contains []string
		excludes []string
	}{
		{
			name: "shapes and edges",
			contains: []string{
				"graph TD\n",
				`n[["build"]]`,
				`n_0["setup"]`,
				`n_1(["draft<br/><small>say 'hi'</small>"])`,
				`n_2[/"plan"/]`,
				`n_2_0{{"review"}}`,
				"n --> n_0",
				"n --> n_2",
				"n_2 --> n_2_0",
			},
			excludes: []string{"classDef"},
		},
		{
			name:    "overlay",
			overlay: &graph.Overlay{Cursor: []int{1}},
			contains: []string{
				"class n,n_0 complete;",
				"class n_1 error;",
				"class n_1 current;",
			},
		},
		{
			name:     "done overlay has no current node",
			overlay:  &graph.Overlay{Done: true},
			excludes: []string{"current;"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(sample(), tt.overlay)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, got, unwanted)
			}
		})
	}
}

func TestGenerateTree(t *testing.T) {
	got := graph.GenerateTree(sample(), &graph.Overlay{Cursor: []int{1}})
	want := strings.Join([]string{
		"[x] build (container)",
		"├── [x] setup (script)",
		"├── [!] draft (model) <-: backend down",
		"└── [ ] plan (disaggregator)",
		"    └── [ ] review (assist)",
		"",
	}, "\n")
	assert.Equal(t, want, got)
}
