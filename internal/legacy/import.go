package legacy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/freeeve/statdiary/internal/cache"
	"github.com/freeeve/statdiary/internal/dberr"
	"github.com/freeeve/statdiary/internal/entry"
	"github.com/freeeve/statdiary/internal/tags"
	"github.com/freeeve/statdiary/internal/walk"
)

// ImportStats counts what an import converted.
type ImportStats struct {
	Files   int
	Entries int
	NewTags int
	// Skipped counts day files already present with identical content,
	// left by an earlier import that was interrupted.
	Skipped int
}

type plannedDay struct {
	src     string
	dst     string
	entries []entry.Entry
	done    bool
}

// Import converts every legacy day file under legacyDir into a day file under
// root/data. Unknown tag names are added to dict. All files are parsed and
// every destination is checked before anything is written, so a malformed or
// conflicting tree leaves the database untouched. The grown dictionary is
// saved to root before the first day file, so every written day file only
// uses ids tags.txt knows. A destination that already holds exactly the
// converted entries was written by an interrupted import and is skipped.
func Import(legacyDir, root string, dict *tags.Dictionary, log zerolog.Logger) (ImportStats, error) {
	var stats ImportStats
	if err := cache.CheckRoot(legacyDir); err != nil {
		return stats, err
	}

	tagsBefore := dict.Len()
	resolve := func(name string) (uint16, error) {
		id, err := dict.ID(name)
		if errors.Is(err, dberr.ErrUnknownTag) {
			return dict.Insert(name)
		}
		return id, err
	}

	var plan []plannedDay
	years, err := walk.ListSorted(legacyDir)
	if err != nil {
		return stats, err
	}
	for _, y := range years {
		year, err := walk.ParseYear(y)
		if err != nil {
			return stats, err
		}
		months, err := walk.ListSorted(y.Path)
		if err != nil {
			return stats, err
		}
		for _, m := range months {
			month, err := walk.ParseMonth(m)
			if err != nil {
				return stats, err
			}
			files, err := walk.ListSorted(m.Path)
			if err != nil {
				return stats, err
			}
			for _, f := range files {
				if f.IsDir {
					return stats, dberr.UnknownFolder(f.Path)
				}
				day, weekday, err := ParseFileName(f.Name)
				if err != nil {
					return stats, dberr.UnknownFile(f.Path)
				}
				entries, err := ParseFile(f.Path, resolve)
				if err != nil {
					return stats, err
				}
				if len(entries) == 0 {
					return stats, dberr.EmptyDayFile(f.Path)
				}
				dst := filepath.Join(cache.DataDir(root), strconv.Itoa(year), strconv.Itoa(month),
					entry.DayFileName(day, weekday))
				plan = append(plan, plannedDay{src: f.Path, dst: dst, entries: entries})
			}
		}
	}

	planned := make(map[string]bool, len(plan))
	for i, p := range plan {
		if planned[p.dst] {
			return stats, &dberr.PathError{Kind: dberr.ErrDayFileExists, Path: p.dst}
		}
		planned[p.dst] = true
		existing, err := entry.ReadFile(p.dst)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err == nil && sameEntries(existing, p.entries):
			plan[i].done = true
		case err == nil || errors.Is(err, dberr.ErrFormat):
			return stats, &dberr.PathError{Kind: dberr.ErrDayFileExists, Path: p.dst}
		default:
			return stats, err
		}
	}

	stats.NewTags = dict.Len() - tagsBefore
	if stats.NewTags > 0 {
		if err := dict.Save(root); err != nil {
			return stats, err
		}
	}

	for _, p := range plan {
		if p.done {
			stats.Skipped++
			log.Debug().Str("dst", p.dst).Msg("day already imported")
			continue
		}
		if err := entry.WriteFile(p.dst, p.entries); err != nil {
			return stats, fmt.Errorf("write %s: %w", p.dst, err)
		}
		stats.Files++
		stats.Entries += len(p.entries)
		log.Debug().Str("src", p.src).Str("dst", p.dst).Int("entries", len(p.entries)).Msg("imported day")
	}
	return stats, nil
}

func sameEntries(a, b []entry.Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
