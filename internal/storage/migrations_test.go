package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingMigrations(t *testing.T) {
	files, err := pendingMigrations(map[string]bool{})
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_init.sql", files[0])

	files, err = pendingMigrations(map[string]bool{"001_init.sql": true})
	require.NoError(t, err)
	assert.NotContains(t, files, "001_init.sql")
}
