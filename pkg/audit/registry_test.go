package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterKeepsOrder(t *testing.T) {
	r := NewRegistry()
	r.Add(
		staticCheck("5.1.20", "a", StatusPass),
		staticCheck("5.1.4", "b", StatusPass),
		staticCheck("5.1.12", "c", StatusPass),
	)

	assert.Equal(t, []string{"5.1.20", "5.1.4", "5.1.12"}, r.IDs())
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_RegisterRejectsBadInput(t *testing.T) {
	r := NewRegistry()
	factory := func() (Check, error) { return staticCheck("1", "k", StatusPass), nil }

	assert.Error(t, r.Register("", factory))
	assert.Error(t, r.Register("1", nil))
	require.NoError(t, r.Register("1", factory))

	err := r.Register("1", factory)
	assert.True(t, errors.Is(err, ErrDuplicateCheck))
	assert.Panics(t, func() { r.MustRegister("1", factory) })
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	r.Add(staticCheck("6.3.1", "aide_installed", StatusPass))

	check, err := r.Resolve("6.3.1")
	require.NoError(t, err)
	results, err := check.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, results, "aide_installed")

	_, err = r.Resolve("6.3.9")
	assert.True(t, errors.Is(err, ErrUnknownCheck))
}

func TestRegistry_ResolveContainsFactoryFaults(t *testing.T) {
	r := NewRegistry().
		MustRegister("nil", func() (Check, error) { return nil, nil }).
		MustRegister("panic", func() (Check, error) { panic("boom") })

	_, err := r.Resolve("nil")
	assert.True(t, errors.Is(err, ErrNilCheck))

	_, err = r.Resolve("panic")
	assert.True(t, errors.Is(err, ErrCheckPanic))
}

func TestRegistry_NilIsEmpty(t *testing.T) {
	var r *Registry

	assert.Nil(t, r.IDs())
	assert.Equal(t, 0, r.Len())
	_, err := r.Resolve("1")
	assert.True(t, errors.Is(err, ErrUnknownCheck))
}

func TestIDsCopyIsolatesRegistry(t *testing.T) {
	r := NewRegistry().Add(staticCheck("1", "a", StatusPass))

	ids := r.IDs()
	ids[0] = "changed"

	assert.Equal(t, []string{"1"}, r.IDs())
}

func TestCategory_CheckIDsAndCount(t *testing.T) {
	ssh := categoryOf("SSH", staticCheck("5.1.4", "a", StatusPass))
	pam := categoryOf("PAM", staticCheck("5.3.1.1", "b", StatusPass), staticCheck("5.3.1.2", "c", StatusPass))
	parent := NewCategory("Access Control", ssh, pam)
	parent.Registry.Add(staticCheck("5.0", "d", StatusPass))

	assert.Equal(t, []string{"5.0", "5.1.4", "5.3.1.1", "5.3.1.2"}, parent.CheckIDs())
	assert.Equal(t, 4, parent.CountChecks())
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "initial-setup", Slug("Initial Setup"))
	assert.Equal(t, "initial-setup", Slug("initial_setup"))
	assert.Equal(t, "initial-setup", Slug(" INITIAL-SETUP "))
}
