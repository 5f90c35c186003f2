package persistence_test

import (
	"testing"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec(t *testing.T) {
	data, err := persistence.Encode(domain.Dict{
		"name":  "x",
		"n":     3,
		"items": []any{1, "two"},
		"fn":    func() {},
	})
	require.NoError(t, err)

	dict, err := persistence.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "x", dict["name"])
	assert.EqualValues(t, 3, dict["n"])
	assert.Equal(t, []any{int64(1), "two"}, dict["items"])
	assert.NotContains(t, dict, "fn")

	empty, err := persistence.Decode([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, empty)

	_, err = persistence.Decode([]byte("{"))
	assert.Error(t, err)
}
