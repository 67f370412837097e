package jsonrpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParamsEmpty(t *testing.T) {
	p, err := ParseParams(nil)
	require.NoError(t, err)
	assert.False(t, p.Has("anything"))
}

func TestParseParamsRejectsNonObject(t *testing.T) {
	_, err := ParseParams([]byte(`[1,2,3]`))
	assert.Error(t, err)
}

func TestParamsString(t *testing.T) {
	p, err := ParseParams([]byte(`{"calendar_id":"primary"}`))
	require.NoError(t, err)

	v, err := p.String("calendar_id")
	require.NoError(t, err)
	assert.Equal(t, "primary", v)

	_, err = p.String("missing")
	assert.Error(t, err)
}

func TestParamsOptionalString(t *testing.T) {
	p, err := ParseParams([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "default", p.OptionalString("missing", "default"))
}

func TestParamsNumber(t *testing.T) {
	p, err := ParseParams([]byte(`{"limit":25}`))
	require.NoError(t, err)

	v, err := p.Number("limit")
	require.NoError(t, err)
	assert.Equal(t, float64(25), v)

	_, err = p.Number("missing")
	assert.Error(t, err)
}

func TestParamsStringSlice(t *testing.T) {
	p, err := ParseParams([]byte(`{"scopes":["calendar.read","calendar.write"]}`))
	require.NoError(t, err)

	v, err := p.StringSlice("scopes")
	require.NoError(t, err)
	assert.Equal(t, []string{"calendar.read", "calendar.write"}, v)

	_, err = p.StringSlice("missing")
	assert.Error(t, err)

	bad, err := ParseParams([]byte(`{"scopes":[1,2]}`))
	require.NoError(t, err)
	_, err = bad.StringSlice("scopes")
	assert.Error(t, err)
}
