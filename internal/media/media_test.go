package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreSaveAndURL(t *testing.T) {
	dir := t.TempDir()
	s := &LocalStore{dir: dir, baseURL: "https://cdn.example.com/media"}

	key, err := s.Save([]byte("jpegbytes"), 7, "time_in")
	require.NoError(t, err)
	assert.Contains(t, key, "7_time_in_")

	data, err := os.ReadFile(filepath.Join(dir, key))
	require.NoError(t, err)
	assert.Equal(t, "jpegbytes", string(data))

	assert.Equal(t, "https://cdn.example.com/media/"+key, s.URL(key))
}

func TestLocalStoreRejectsEmptyPayload(t *testing.T) {
	s := &LocalStore{dir: t.TempDir()}
	_, err := s.Save(nil, 7, "time_in")
	assert.Error(t, err)
}

func TestURLDefaults(t *testing.T) {
	s := &LocalStore{dir: "."}
	assert.Equal(t, "/media/abc.jpg", s.URL("abc.jpg"))
	assert.Empty(t, s.URL(""))
}
