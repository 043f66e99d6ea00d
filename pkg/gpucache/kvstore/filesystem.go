package kvstore

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/buildbarn/gpucache/pkg/util"
)

// Filesystem is a key/value backend that stores each entry as one file
// inside a root directory, named after the hex encoding of its key.
// Writes go to a temporary file that is renamed into place, the same
// atomic-write idiom the teacher uses for its own on-disk state
// (pkg/blobstore/local.directoryBackedPersistentStateStore).
//
// This backend uses os directly rather than the teacher's
// pkg/filesystem.Directory abstraction: as copied from the retrieval
// pack, directory.go's Directory interface returns FileReader/
// FileWriter/FileAppender/FileReadWriter types that are never declared
// anywhere in that package (file.go only defines File) — a pre-existing
// gap in the retrieved teacher snapshot, not something introduced here.
// Building atop an interface whose own method signatures don't resolve
// would just inherit that breakage, so this backend is grounded
// instead on the same atomic rename pattern, expressed with os.
type Filesystem struct {
	root        string
	errorLogger util.ErrorLogger
}

// NewFilesystem returns a Filesystem backend rooted at root, which must
// already exist. errorLogger receives I/O errors that Load/Store must
// otherwise swallow to honor blobcache's "external store failures are
// never visible to the caller" contract; it may be nil.
func NewFilesystem(root string, errorLogger util.ErrorLogger) *Filesystem {
	return &Filesystem{root: root, errorLogger: errorLogger}
}

func (f *Filesystem) logError(err error) {
	if err != nil && f.errorLogger != nil {
		f.errorLogger.Log(err)
	}
}

func (f *Filesystem) pathForKey(key []byte) string {
	return filepath.Join(f.root, hex.EncodeToString(key))
}

// Load implements blobcache.LoadFunc.
func (f *Filesystem) Load(key []byte, out []byte) int {
	data, err := os.ReadFile(f.pathForKey(key))
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		f.logError(err)
		return 0
	}
	if out == nil {
		return len(data)
	}
	copy(out, data)
	return len(data)
}

// Store implements blobcache.StoreFunc.
func (f *Filesystem) Store(key []byte, value []byte) {
	target := f.pathForKey(key)
	tmp, err := os.CreateTemp(f.root, hex.EncodeToString(key)+".*.tmp")
	if err != nil {
		f.logError(err)
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		f.logError(err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		f.logError(err)
		return
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		f.logError(err)
	}
}
