package batch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/storage"
)

// walSuffix names DuckDB's write-ahead log next to a database file.
const walSuffix = ".wal"

// Snapshot is the private copy of the source database inside a batch folder.
type Snapshot struct {
	Path   string
	Size   int64
	Digest uint64 // xxh3 of the main database file
}

// SnapshotName returns "<prefix>_<token><ext>", using the source file's
// extension.
func SnapshotName(prefix, token, source string) string {
	return prefix + "_" + token + filepath.Ext(source)
}

// CreateSnapshot copies source into the batch folder, replacing any earlier
// snapshot of the same name. The copy is verified against the bytes read, and
// a pending WAL next to the source travels with it. Failures are
// *storage.DatabaseIOError.
func CreateSnapshot(source string, b Batch, prefix string) (Snapshot, error) {
	dst := filepath.Join(b.Dir, SnapshotName(prefix, b.Token, source))

	size, digest, err := copyVerified(source, dst)
	if err != nil {
		return Snapshot{}, &storage.DatabaseIOError{Op: "snapshot", Path: source, Err: err}
	}

	switch _, _, err := copyVerified(source+walSuffix, dst+walSuffix); {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		if rmErr := os.Remove(dst + walSuffix); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return Snapshot{}, &storage.DatabaseIOError{Op: "snapshot", Path: dst + walSuffix, Err: rmErr}
		}
	default:
		return Snapshot{}, &storage.DatabaseIOError{Op: "snapshot", Path: source + walSuffix, Err: err}
	}

	return Snapshot{Path: dst, Size: size, Digest: digest}, nil
}

// copyVerified copies src to dst through a temp file and rename, hashing the
// source stream and then the written file.
func copyVerified(src, dst string) (int64, uint64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, 0, err
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return 0, 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, 0, err
	}
	tmpName := tmp.Name()
	fail := func(err error) (int64, uint64, error) {
		tmp.Close()
		os.Remove(tmpName)
		return 0, 0, err
	}

	h := xxh3.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), in)
	if err != nil {
		return fail(fmt.Errorf("copy: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return fail(fmt.Errorf("close: %w", err))
	}
	want := h.Sum64()

	got, err := hashFile(tmpName)
	if err != nil {
		os.Remove(tmpName)
		return 0, 0, err
	}
	if got != want {
		os.Remove(tmpName)
		return 0, 0, fmt.Errorf("copy verification failed: digest %016x != %016x", got, want)
	}

	_ = os.Chmod(tmpName, fi.Mode().Perm())
	_ = os.Chtimes(tmpName, fi.ModTime(), fi.ModTime())
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return 0, 0, err
	}
	return n, want, nil
}

func hashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
