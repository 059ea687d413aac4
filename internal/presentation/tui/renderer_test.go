package tui_test

import (
	"strings"
	"testing"

	"github.com/aretw0/tasktree/internal/presentation/tui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenderer(t *testing.T) {
	render := tui.NewRenderer(0)
	out, err := render("# Release\n\nTag **v1.2.0** once the checks pass.")
	require.NoError(t, err)
	assert.Contains(t, out, "Release")
	assert.Contains(t, out, "v1.2.0")
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.False(t, strings.HasSuffix(out, "\n\n"))
}
