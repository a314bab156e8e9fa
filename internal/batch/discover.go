package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// FolderSuffix follows the YYMMDD token in a batch folder name.
const FolderSuffix = "_update"

var reFolder = regexp.MustCompile(`^(\d{6})` + FolderSuffix + `$`)

// ErrNoBatch is returned when the updates directory holds no batch folder.
var ErrNoBatch = errors.New("no batch folder found")

// FolderError reports an explicitly selected folder that is not a batch.
type FolderError struct {
	Path   string
	Reason string
}

func (e *FolderError) Error() string {
	return fmt.Sprintf("batch folder %s: %s", e.Path, e.Reason)
}

// Batch is the folder a run works on.
type Batch struct {
	Dir   string
	Name  string
	Token string // YYMMDD
	Date  time.Time
}

// ParseFolder validates a batch folder name and returns its token and date.
func ParseFolder(name string) (token string, date time.Time, ok bool) {
	m := reFolder.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, false
	}
	d, err := time.Parse("060102", m[1])
	if err != nil {
		return "", time.Time{}, false
	}
	return m[1], d, true
}

// Latest returns the batch folder under updatesDir with the most recent date
// token.
func Latest(updatesDir string) (Batch, error) {
	entries, err := os.ReadDir(updatesDir)
	if err != nil {
		return Batch{}, fmt.Errorf("batch: read %s: %w", updatesDir, err)
	}
	var found []Batch
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		token, date, ok := ParseFolder(e.Name())
		if !ok {
			continue
		}
		found = append(found, Batch{
			Dir:   filepath.Join(updatesDir, e.Name()),
			Name:  e.Name(),
			Token: token,
			Date:  date,
		})
	}
	if len(found) == 0 {
		return Batch{}, fmt.Errorf("%w in %s", ErrNoBatch, updatesDir)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Date.After(found[j].Date) })
	return found[0], nil
}

// Resolve validates an explicitly selected folder. A relative path that does
// not exist from the working directory is tried under updatesDir.
func Resolve(path, updatesDir string) (Batch, error) {
	dir := path
	if !filepath.IsAbs(dir) {
		if _, err := os.Stat(dir); err != nil && updatesDir != "" {
			dir = filepath.Join(updatesDir, path)
		}
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return Batch{}, &FolderError{Path: path, Reason: "does not exist"}
	}
	if !fi.IsDir() {
		return Batch{}, &FolderError{Path: path, Reason: "is not a directory"}
	}
	name := filepath.Base(filepath.Clean(dir))
	token, date, ok := ParseFolder(name)
	if !ok {
		return Batch{}, &FolderError{Path: path, Reason: "name must be YYMMDD" + FolderSuffix}
	}
	return Batch{Dir: dir, Name: name, Token: token, Date: date}, nil
}
