package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog"

	"github.com/freeeve/statdiary/internal/dberr"
	"github.com/freeeve/statdiary/internal/entry"
	"github.com/freeeve/statdiary/internal/walk"
)

// Cache file names.
const (
	DataDirName    = "data"
	YearCacheName  = "year_cache.txt"
	MonthCacheName = "month_cache.txt"
)

// Summary counts what a rebuild walked.
type Summary struct {
	Years   int
	Months  int
	Days    int
	Entries int
}

// DataDir returns root/data.
func DataDir(root string) string {
	return filepath.Join(root, DataDirName)
}

// CheckRoot verifies that root is an existing directory.
func CheckRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", dberr.ErrInvalidPath, root)
	}
	return nil
}

// Rebuild recomputes every month and year cache under root/data from the day
// files, overwriting existing caches. Each cache file is replaced in one
// step once its folder has been fully measured, so a failure never leaves a
// truncated cache behind; folders finished before the failure keep their new
// caches.
func Rebuild(root string, log zerolog.Logger) (Summary, error) {
	var sum Summary
	if err := CheckRoot(root); err != nil {
		return sum, err
	}

	years, err := walk.ListSorted(DataDir(root))
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("root", root).Msg("no data folder, nothing to rebuild")
		return sum, nil
	}
	if err != nil {
		return sum, err
	}

	for _, it := range years {
		if _, err := walk.ParseYear(it); err != nil {
			return sum, err
		}
		if err := rebuildYear(it.Path, &sum, log); err != nil {
			return sum, err
		}
		sum.Years++
	}
	return sum, nil
}

// RebuildYear recomputes the caches of a single year folder. A year without
// a folder has nothing to rebuild.
func RebuildYear(root string, year int, log zerolog.Logger) (Summary, error) {
	var sum Summary
	if err := CheckRoot(root); err != nil {
		return sum, err
	}
	yearDir := filepath.Join(DataDir(root), strconv.Itoa(year))
	if _, err := os.Stat(yearDir); errors.Is(err, fs.ErrNotExist) {
		return sum, nil
	}
	if err := rebuildYear(yearDir, &sum, log); err != nil {
		return sum, err
	}
	sum.Years++
	return sum, nil
}

// DayFile locates one day file in the data tree.
type DayFile struct {
	Year    int
	Month   int
	Day     int
	Weekday time.Weekday
	Path    string
}

// ListDayFiles returns every day file under root/data in calendar order. The
// tree is validated the same way Rebuild validates it.
func ListDayFiles(root string, log zerolog.Logger) ([]DayFile, error) {
	if err := CheckRoot(root); err != nil {
		return nil, err
	}
	years, err := walk.ListSorted(DataDir(root))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	w := treeWalker{log: log}
	var out []DayFile
	for _, it := range years {
		year, err := walk.ParseYear(it)
		if err != nil {
			return nil, err
		}
		months, err := w.monthFolders(it.Path)
		if err != nil {
			return nil, err
		}
		for _, mf := range months {
			days, err := w.dayFiles(mf.path)
			if err != nil {
				return nil, err
			}
			for _, d := range days {
				out = append(out, DayFile{Year: year, Month: mf.month, Day: d.day, Weekday: d.weekday, Path: d.path})
			}
		}
	}
	// Year folders come back in name order; "999" sorts after "2024".
	sort.SliceStable(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, nil
}

type monthFolder struct {
	month int
	path  string
}

// treeWalker lists and validates the data tree. Temp files left by an
// interrupted atomic write of a cache or day file are deleted when clean is
// set and skipped otherwise; every other stray entry is an anomaly.
type treeWalker struct {
	clean bool
	log   zerolog.Logger
}

// monthFolders lists the validated month folders of a year folder in
// calendar order.
func (w treeWalker) monthFolders(yearDir string) ([]monthFolder, error) {
	items, err := walk.ListSorted(yearDir)
	if err != nil {
		return nil, err
	}
	var months []monthFolder
	seen := make(map[int]bool)
	for _, it := range items {
		if !it.IsDir && it.Name == YearCacheName {
			continue
		}
		if w.leftover(it, func(target string) bool { return target == YearCacheName }) {
			continue
		}
		m, err := walk.ParseMonth(it)
		if err != nil {
			return nil, err
		}
		if seen[m] {
			return nil, dberr.UnknownFolder(it.Path)
		}
		seen[m] = true
		months = append(months, monthFolder{month: m, path: it.Path})
	}
	sort.Slice(months, func(i, j int) bool { return months[i].month < months[j].month })
	return months, nil
}

func rebuildYear(yearDir string, sum *Summary, log zerolog.Logger) error {
	w := treeWalker{clean: true, log: log}
	months, err := w.monthFolders(yearDir)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, mf := range months {
		avg, days, err := rebuildMonth(w, mf.path, sum)
		if err != nil {
			return err
		}
		sum.Months++
		log.Debug().Str("month", mf.path).Int("days", days).Msg("month cache written")
		if days == 0 {
			continue
		}
		fmt.Fprintf(&buf, "%d | %s\n", mf.month, avg)
	}
	if err := atomic.WriteFile(filepath.Join(yearDir, YearCacheName), &buf); err != nil {
		return fmt.Errorf("write year cache: %w", err)
	}
	return nil
}

type dayFile struct {
	day     int
	weekday time.Weekday
	name    string
	path    string
}

// dayFiles lists the day files of a month folder ordered by day of month.
func (w treeWalker) dayFiles(monthDir string) ([]dayFile, error) {
	items, err := walk.ListSorted(monthDir)
	if err != nil {
		return nil, err
	}
	var days []dayFile
	seen := make(map[int]bool)
	for _, it := range items {
		if it.IsDir {
			return nil, dberr.UnknownFolder(it.Path)
		}
		if it.Name == MonthCacheName || w.leftover(it, isMonthTarget) {
			continue
		}
		if filepath.Ext(it.Name) != "."+entry.DataFileExtension {
			return nil, dberr.UnknownFile(it.Path)
		}
		day, weekday, err := entry.ParseDayFileName(it.Name)
		if err != nil || seen[day] {
			return nil, dberr.UnknownFile(it.Path)
		}
		seen[day] = true
		days = append(days, dayFile{day: day, weekday: weekday, name: it.Name, path: it.Path})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].day < days[j].day })
	return days, nil
}

// rebuildMonth writes the month cache and returns the month's averages and
// the number of day files it covered.
func rebuildMonth(w treeWalker, monthDir string, sum *Summary) (ScoreAverages, int, error) {
	days, err := w.dayFiles(monthDir)
	if err != nil {
		return ScoreAverages{}, 0, err
	}

	overviews := make([]Overview, 0, len(days))
	var buf bytes.Buffer
	for _, d := range days {
		entries, err := entry.ReadFile(d.path)
		if err != nil {
			return ScoreAverages{}, 0, err
		}
		ov, err := ComputeOverview(entries)
		if errors.Is(err, dberr.ErrEmptyDayFile) {
			return ScoreAverages{}, 0, dberr.EmptyDayFile(d.path)
		}
		if err != nil {
			return ScoreAverages{}, 0, err
		}
		overviews = append(overviews, ov)
		sum.Entries += len(entries)
		fmt.Fprintf(&buf, "%s | %s\n", d.name, ov)
	}

	if err := atomic.WriteFile(filepath.Join(monthDir, MonthCacheName), &buf); err != nil {
		return ScoreAverages{}, 0, fmt.Errorf("write month cache: %w", err)
	}
	sum.Days += len(days)
	return averageOf(overviews), len(days), nil
}

func isMonthTarget(target string) bool {
	if target == MonthCacheName {
		return true
	}
	_, _, err := entry.ParseDayFileName(target)
	return err == nil
}

// leftover reports whether it is the temp sibling of a file this package or
// entry.WriteFile writes, removing it when w.clean is set. The target it
// belonged to is either intact or rewritten by the rebuild.
func (w treeWalker) leftover(it walk.Item, known func(target string) bool) bool {
	if it.IsDir {
		return false
	}
	target, ok := walk.TempTarget(it.Name)
	if !ok || !known(target) {
		return false
	}
	if !w.clean {
		w.log.Debug().Str("path", it.Path).Msg("skipping leftover temp file")
		return true
	}
	if err := os.Remove(it.Path); err != nil {
		w.log.Warn().Err(err).Str("path", it.Path).Msg("remove leftover temp file")
		return false
	}
	w.log.Warn().Str("path", it.Path).Msg("removed leftover temp file")
	return true
}
