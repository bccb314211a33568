package settings

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		description TEXT,
		updated_at INTEGER NOT NULL
	)`)
	require.NoError(t, err)

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	return NewRepository(db, logger)
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo := setupRepository(t)

	value, err := repo.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestSetAndGet(t *testing.T) {
	repo := setupRepository(t)

	require.NoError(t, repo.Set("base_currency", "EUR", nil))

	value, err := repo.Get("base_currency")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "EUR", *value)

	// Upsert replaces the value.
	require.NoError(t, repo.Set("base_currency", "USD", nil))
	value, err = repo.Get("base_currency")
	require.NoError(t, err)
	assert.Equal(t, "USD", *value)
}

func TestSetWithDescription(t *testing.T) {
	repo := setupRepository(t)

	desc := "configured base currency"
	require.NoError(t, repo.Set("base_currency", "EUR", &desc))

	value, err := repo.Get("base_currency")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "EUR", *value)
}

func TestDeleteIsIdempotent(t *testing.T) {
	repo := setupRepository(t)

	require.NoError(t, repo.Set("key", "value", nil))
	require.NoError(t, repo.Delete("key"))
	require.NoError(t, repo.Delete("key"))

	value, err := repo.Get("key")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestGetAll(t *testing.T) {
	repo := setupRepository(t)

	require.NoError(t, repo.Set("a", "1", nil))
	require.NoError(t, repo.Set("b", "2", nil))

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, all)
}

func TestGetFloat(t *testing.T) {
	repo := setupRepository(t)

	value, err := repo.GetFloat("missing", 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, value)

	require.NoError(t, repo.Set("threshold", "0.25", nil))
	value, err = repo.GetFloat("threshold", 1.5)
	require.NoError(t, err)
	assert.Equal(t, 0.25, value)

	require.NoError(t, repo.Set("threshold", "not-a-number", nil))
	value, err = repo.GetFloat("threshold", 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, value)
}

func TestGetBool(t *testing.T) {
	repo := setupRepository(t)

	value, err := repo.GetBool("missing", true)
	require.NoError(t, err)
	assert.True(t, value)

	for _, truthy := range []string{"true", "1", "yes", "on"} {
		require.NoError(t, repo.Set("flag", truthy, nil))
		value, err = repo.GetBool("flag", false)
		require.NoError(t, err)
		assert.True(t, value, truthy)
	}

	require.NoError(t, repo.Set("flag", "false", nil))
	value, err = repo.GetBool("flag", true)
	require.NoError(t, err)
	assert.False(t, value)
}

func TestJSONRoundTrip(t *testing.T) {
	repo := setupRepository(t)

	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	var loaded record
	found, err := repo.GetJSON("record", &loaded)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.SetJSON("record", record{Name: "fx", Count: 3}))

	found, err = repo.GetJSON("record", &loaded)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, record{Name: "fx", Count: 3}, loaded)
}
