// store_test.go - Tests for storage layer
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sheetscrape/console/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates storage directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "staging")

		store, err := NewLocalStore(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, store.Root())

		_, err = os.Stat(dir)
		assert.NoError(t, err)
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves file from reader", func(t *testing.T) {
		store := createTestStore(t)
		content := "spreadsheet bytes"

		info, err := store.Save("urls.xlsx", models.FileKindStaged, strings.NewReader(content))
		require.NoError(t, err)

		assert.NotEmpty(t, info.ID)
		assert.Equal(t, "urls.xlsx", info.Name)
		assert.Equal(t, int64(len(content)), info.Size)
		assert.Equal(t, models.FileKindStaged, info.Kind)
		assert.WithinDuration(t, time.Now(), info.StoredAt, 5*time.Second)

		path, err := store.GetFilePath(info.ID)
		require.NoError(t, err)
		assert.Equal(t, "urls.xlsx", filepath.Base(path))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, content, string(data))
	})

	t.Run("strips directories from names", func(t *testing.T) {
		store := createTestStore(t)

		for _, name := range []string{"../../etc/passwd.xlsx", `C:\Users\me\urls.xlsx`, "/abs/urls.xls"} {
			info, err := store.Save(name, models.FileKindStaged, strings.NewReader("x"))
			require.NoError(t, err, name)
			path, _ := store.GetFilePath(info.ID)
			assert.True(t, strings.HasPrefix(path, store.Root()), name)
			assert.NotContains(t, info.Name, "/")
			assert.NotContains(t, info.Name, `\`)
		}
	})

	t.Run("rejects empty names", func(t *testing.T) {
		store := createTestStore(t)
		for _, name := range []string{"", ".", ".."} {
			_, err := store.Save(name, models.FileKindStaged, strings.NewReader("x"))
			assert.Error(t, err, name)
		}
	})

	t.Run("cleans up on read error", func(t *testing.T) {
		store := createTestStore(t)
		_, err := store.Save("bad.xlsx", models.FileKindStaged, failingReader{})
		require.Error(t, err)

		entries, _ := os.ReadDir(store.Root())
		assert.Empty(t, entries)
		list, _ := store.List(10)
		assert.Empty(t, list)
	})
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestLocalStore_GetAndOpen(t *testing.T) {
	store := createTestStore(t)
	info, err := store.Save("out.xlsx", models.FileKindDownloaded, bytes.NewReader([]byte("artifact")))
	require.NoError(t, err)

	got, err := store.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	rc, err := store.Open(info.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "artifact", string(data))

	_, err = store.Get("missing")
	assert.Error(t, err)
	_, err = store.Open("missing")
	assert.Error(t, err)
	_, err = store.GetFilePath("missing")
	assert.Error(t, err)
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)

	for i := 0; i < 5; i++ {
		_, err := store.Save(fmt.Sprintf("f%d.xlsx", i), models.FileKindStaged, strings.NewReader("x"))
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	all, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "f4.xlsx", all[0].Name)
	assert.Equal(t, "f0.xlsx", all[4].Name)

	limited, err := store.List(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestLocalStore_Delete(t *testing.T) {
	store := createTestStore(t)
	info, err := store.Save("a.xlsx", models.FileKindStaged, strings.NewReader("x"))
	require.NoError(t, err)
	path, _ := store.GetFilePath(info.ID)

	require.NoError(t, store.Delete(info.ID))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = store.Get(info.ID)
	assert.Error(t, err)

	assert.Error(t, store.Delete(info.ID))
}

func TestLocalStore_ConcurrentAccess(t *testing.T) {
	store := createTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := store.Save(fmt.Sprintf("c%d.xlsx", i), models.FileKindStaged, strings.NewReader("data"))
			if assert.NoError(t, err) {
				_, err = store.Get(info.ID)
				assert.NoError(t, err)
			}
			_, _ = store.List(5)
		}(i)
	}
	wg.Wait()

	list, err := store.List(0)
	require.NoError(t, err)
	assert.Len(t, list, 20)
}
