package data_test

import (
	"context"
	"errors"
	"testing"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/data/datatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *data.Data {
	t.Helper()
	d := datatest.NewSQLite(t)
	_, err := d.DB().Exec(`CREATE TABLE items (id TEXT PRIMARY KEY, name TEXT NOT NULL UNIQUE)`)
	require.NoError(t, err)
	return d
}

func count(t *testing.T, d *data.Data) int {
	t.Helper()
	var n int
	require.NoError(t, d.DB().QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func insert(ctx context.Context, d *data.Data, id, name string) error {
	query, args := d.Builder().Insert("items").Columns("id", "name").Values(id, name).Query()
	_, err := d.Executor(ctx).ExecContext(ctx, query, args...)
	return err
}

func TestWithTxCommit(t *testing.T) {
	d := setup(t)
	ctx := context.Background()

	err := d.WithTx(ctx, func(ctx context.Context) error {
		_, err := data.GetTx(ctx)
		require.NoError(t, err)
		return insert(ctx, d, "1", "one")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, d))
}

func TestWithTxRollback(t *testing.T) {
	d := setup(t)
	boom := errors.New("boom")

	err := d.WithTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, insert(ctx, d, "1", "one"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, d))
}

func TestWithTxJoinsOuterTransaction(t *testing.T) {
	d := setup(t)
	boom := errors.New("boom")

	err := d.WithTx(context.Background(), func(ctx context.Context) error {
		outer, _ := data.GetTx(ctx)
		require.NoError(t, d.WithTx(ctx, func(ctx context.Context) error {
			inner, _ := data.GetTx(ctx)
			assert.Same(t, outer, inner)
			return insert(ctx, d, "1", "one")
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, d))
}

func TestIsUniqueViolation(t *testing.T) {
	d := setup(t)
	ctx := context.Background()

	require.NoError(t, insert(ctx, d, "1", "one"))
	err := insert(ctx, d, "2", "one")
	require.Error(t, err)
	assert.True(t, data.IsUniqueViolation(err))

	assert.False(t, data.IsUniqueViolation(errors.New("other")))
	assert.False(t, data.IsUniqueViolation(nil))
}

func TestBuilderDialect(t *testing.T) {
	d := data.NewWithDB(nil, data.DriverPostgres, nil)
	assert.Equal(t, dialect.Postgres, d.Dialect())

	query, args := d.Builder().Select("id").From(entsql.Table("items")).Where(entsql.EQ("name", "x")).Query()
	assert.Equal(t, `SELECT "id" FROM "items" WHERE "name" = $1`, query)
	assert.Equal(t, []any{"x"}, args)
}

func TestAfterCommit(t *testing.T) {
	d := setup(t)
	var ran []string

	data.AfterCommit(context.Background(), func() { ran = append(ran, "direct") })
	assert.Equal(t, []string{"direct"}, ran)

	require.NoError(t, d.WithTx(context.Background(), func(ctx context.Context) error {
		data.AfterCommit(ctx, func() { ran = append(ran, "committed") })
		assert.Equal(t, []string{"direct"}, ran)
		return nil
	}))
	assert.Equal(t, []string{"direct", "committed"}, ran)

	_ = d.WithTx(context.Background(), func(ctx context.Context) error {
		data.AfterCommit(ctx, func() { ran = append(ran, "rolled back") })
		return errors.New("boom")
	})
	assert.Equal(t, []string{"direct", "committed"}, ran)
}
