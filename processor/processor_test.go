package processor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBytes(t *testing.T) {
	// SHA-256 пустой строки
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashBytes(nil))
	assert.Equal(t, HashBytes([]byte("abc")), HashBytes([]byte("abc")))
	assert.NotEqual(t, HashBytes([]byte("abc")), HashBytes([]byte("abd")))
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.sql")
	require.NoError(t, os.WriteFile(path, []byte("INSERT INTO t VALUES(1);"), 0o644))

	sum, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashBytes([]byte("INSERT INTO t VALUES(1);")), sum)

	_, err = HashFile(filepath.Join(t.TempDir(), "missing.sql"))
	assert.Error(t, err)
}

func TestProcessDumpArchive_RoundTrip(t *testing.T) {
	dump := []byte("CREATE TABLE t(x);\nINSERT INTO t VALUES(1);\nINSERT INTO t VALUES(1);\n")

	archive := ProcessDumpArchive(dump)
	assert.Equal(t, len(dump), archive.OriginalSize)

	restored, err := RestoreDumpArchive(archive.Compressed, archive.Hash)
	require.NoError(t, err)
	assert.Equal(t, dump, restored)

	_, err = RestoreDumpArchive(archive.Compressed, HashBytes([]byte("other")))
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestDecompressDump_Invalid(t *testing.T) {
	_, err := DecompressDump([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}
