// Package walk lists database folders in calendar order and validates the
// year/month folder names of the data tree.
package walk

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/freeeve/statdiary/internal/dberr"
)

// Item is one immediate child of a listed directory.
type Item struct {
	Name  string
	Path  string
	IsDir bool
}

// ListSorted returns the immediate children of dir ordered by name.
func ListSorted(dir string) ([]Item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, Item{
			Name:  e.Name(),
			Path:  filepath.Join(dir, e.Name()),
			IsDir: e.IsDir(),
		})
	}
	// os.ReadDir already sorts by filename; keep the order explicit.
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// ParseMonth validates a month folder, which must be named 1 through 12,
// optionally with one leading zero.
func ParseMonth(it Item) (int, error) {
	if !it.IsDir {
		return 0, dberr.UnknownFile(it.Path)
	}
	if len(it.Name) == 0 || len(it.Name) > 2 || strings.Trim(it.Name, "0123456789") != "" {
		return 0, dberr.UnknownFolder(it.Path)
	}
	month, err := strconv.Atoi(it.Name)
	if err != nil || month < 1 || month > 12 {
		return 0, dberr.UnknownFolder(it.Path)
	}
	return month, nil
}

// ParseYear validates a year folder, which must be a plain positive number.
func ParseYear(it Item) (int, error) {
	if !it.IsDir {
		return 0, dberr.UnknownFile(it.Path)
	}
	year, err := strconv.Atoi(it.Name)
	if err != nil || year < 1 || strconv.Itoa(year) != it.Name {
		return 0, dberr.UnknownFolder(it.Path)
	}
	return year, nil
}

// TempTarget reports whether name looks like the temporary sibling an
// atomic write creates next to a .dat or .txt file: the target name followed
// by random digits. It returns the target name. Callers decide whether the
// target is one they write.
func TempTarget(name string) (string, bool) {
	target := strings.TrimRight(name, "0123456789")
	if target == name {
		return "", false
	}
	switch filepath.Ext(target) {
	case ".dat", ".txt":
		return target, true
	}
	return "", false
}
