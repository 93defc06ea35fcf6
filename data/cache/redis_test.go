package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type row struct {
	ID string `json:"id"`
}

func TestKey(t *testing.T) {
	assert.Equal(t, "workspaces:w1", NewCache[row](nil, "workspaces").Key("w1"))
	assert.Equal(t, "w1", NewCache[row](nil, "").Key("w1"))
}

func TestNilClient(t *testing.T) {
	c := NewCache[row](nil, "rows")
	ctx := context.Background()

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, errNilClient)
	assert.ErrorIs(t, c.Set(ctx, "a", &row{ID: "a"}), errNilClient)
	assert.ErrorIs(t, c.SetField(ctx, "a", "f", &row{ID: "a"}), errNilClient)
	assert.ErrorIs(t, c.Delete(ctx, "a"), errNilClient)
}

func TestDecode(t *testing.T) {
	got, err := decode[row](`{"id":"x"}`, nil)
	assert.NoError(t, err)
	assert.Equal(t, "x", got.ID)

	_, err = decode[row]("not json", nil)
	assert.Error(t, err)
}
