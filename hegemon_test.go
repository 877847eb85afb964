package hegemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/hegemon/core"
)

func TestNewDatabase(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		tmpDir := filepath.Join(t.TempDir(), "test_db")
		db, err := NewDatabase(tmpDir)
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		// Verify components are initialized
		assert.NotNil(t, db.DocumentRepository())
		assert.NotNil(t, db.ChunkRepository())
		assert.NotNil(t, db.LedgerRepository())
		assert.NotNil(t, db.Registry())
		assert.NotNil(t, db.backend)
		assert.NotNil(t, db.logger)
		assert.Greater(t, db.Registry().Len(), 0)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		// Try to create a database at a file path instead of directory
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		err := os.WriteFile(tmpFile, []byte("test"), 0644)
		require.NoError(t, err)

		db, err := NewDatabase(tmpFile)
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("roster override", func(t *testing.T) {
		tmpDir := filepath.Join(t.TempDir(), "test_db")
		db, err := NewDatabase(tmpDir, WithRoster([]core.Company{
			{Code: "005380", Name: "Hyundai Motor", Industry: "automotive"},
		}))
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, 1, db.Registry().Len())
		_, ok := db.Registry().Resolve("005380")
		assert.True(t, ok)
	})
}

func TestDatabase_Close(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := NewDatabase(tmpDir)
	require.NoError(t, err)
	require.NotNil(t, db)

	// Close the database
	err = db.Close()
	assert.NoError(t, err)
}

func TestDatabase_FactoryMethods(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := NewDatabase(tmpDir)
	require.NoError(t, err)
	require.NotNil(t, db)
	defer db.Close()

	t.Run("can create scheduler", func(t *testing.T) {
		scheduler, err := db.NewScheduler(nil)
		require.NoError(t, err)
		require.NotNil(t, scheduler)
		scheduler.Release()
	})

	t.Run("can create backfiller", func(t *testing.T) {
		backfiller, err := db.NewBackfiller(nil)
		require.NoError(t, err)
		require.NotNil(t, backfiller)
	})

	t.Run("can create engine", func(t *testing.T) {
		engine, err := db.NewEngine()
		require.NoError(t, err)
		require.NotNil(t, engine)
	})

	t.Run("can create composer", func(t *testing.T) {
		composer, err := db.NewComposer()
		require.NoError(t, err)
		require.NotNil(t, composer)
	})

	t.Run("can create server", func(t *testing.T) {
		server, err := db.NewServer(nil, nil)
		require.NoError(t, err)
		require.NotNil(t, server)
	})

	t.Run("can create exporters", func(t *testing.T) {
		exporter, err := db.NewExporter()
		require.NoError(t, err)
		require.NotNil(t, exporter)

		training, err := db.NewTrainingExporter(nil, nil)
		require.NoError(t, err)
		require.NotNil(t, training)
	})
}
