package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeviceRepository(t *testing.T) {
	t.Run("InMem", func(t *testing.T) {
		repo, err := NewDeviceRepository("inmem", RepositoryConfig{})
		require.NoError(t, err)
		assert.IsType(t, &InMemDeviceRepository{}, repo)
	})

	t.Run("PostgresRequiresDB", func(t *testing.T) {
		_, err := NewDeviceRepository("postgres", RepositoryConfig{})
		assert.Error(t, err)
	})

	t.Run("UnknownType", func(t *testing.T) {
		_, err := NewDeviceRepository("dynamo", RepositoryConfig{})
		assert.Error(t, err)
	})
}
