package registry_test

import (
	"testing"

	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ConstructsEveryVariant(t *testing.T) {
	r := registry.Default()

	for _, kind := range r.Kinds() {
		v, err := r.New(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, v.Kind())
	}
	assert.Len(t, r.Kinds(), 5)
}

func TestNew_UnknownKindFails(t *testing.T) {
	_, err := registry.Default().New("python")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNew_ReturnsFreshValues(t *testing.T) {
	r := registry.Default()

	a, _ := r.New(domain.KindScript)
	b, _ := r.New(domain.KindScript)
	a.(*domain.Script).Source = "x"

	assert.Empty(t, b.(*domain.Script).Source)
}
