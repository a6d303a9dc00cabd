// Package maint runs the maintenance operations of a diary database. Every
// operation claims the database through the status ledger first and releases
// it when it returns; a task interrupted by a crash stays recorded and is
// finished by Resume.
package maint

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/statdiary/internal/backup"
	"github.com/freeeve/statdiary/internal/cache"
	"github.com/freeeve/statdiary/internal/dberr"
	"github.com/freeeve/statdiary/internal/entry"
	"github.com/freeeve/statdiary/internal/ledger"
	"github.com/freeeve/statdiary/internal/legacy"
	"github.com/freeeve/statdiary/internal/tags"
)

// Runner executes maintenance operations against one database root.
type Runner struct {
	Root string
	Log  zerolog.Logger
}

// New returns a Runner for root.
func New(root string, log zerolog.Logger) *Runner {
	return &Runner{Root: root, Log: log}
}

// run claims the ledger for task, calls fn and releases the ledger whatever
// fn returns.
func (r *Runner) run(task ledger.Task, fn func() error) error {
	l, err := ledger.Activate(r.Root, task)
	if err != nil {
		return err
	}
	return r.finish(l, fn())
}

func (r *Runner) finish(l *ledger.Ledger, err error) error {
	task := l.Task().String()
	if derr := l.Deactivate(); derr != nil {
		r.Log.Error().Err(derr).Str("task", task).Msg("release ledger")
		if err == nil {
			err = derr
		}
	}
	if err != nil {
		r.Log.Error().Err(err).Str("task", task).Msg("task failed")
		return err
	}
	r.Log.Debug().Str("task", task).Msg("task done")
	return nil
}

// RebuildCaches recomputes every month and year cache.
func (r *Runner) RebuildCaches() (cache.Summary, error) {
	var sum cache.Summary
	err := r.run(ledger.RebuildTask(), func() error {
		var err error
		sum, err = r.rebuild()
		return err
	})
	return sum, err
}

func (r *Runner) rebuild() (cache.Summary, error) {
	start := time.Now()
	sum, err := cache.Rebuild(r.Root, r.Log)
	if err != nil {
		return sum, err
	}
	r.Log.Info().
		Int("years", sum.Years).
		Int("months", sum.Months).
		Int("days", sum.Days).
		Int("entries", sum.Entries).
		Dur("elapsed", time.Since(start)).
		Msg("caches rebuilt")
	return sum, nil
}

// RenameTag gives the tag oldName the name newName. Day files and caches
// store ids, so only the dictionary changes.
func (r *Runner) RenameTag(oldName, newName string) error {
	for _, name := range []string{oldName, newName} {
		if err := tags.ValidateName(name); err != nil {
			return err
		}
	}
	return r.run(ledger.RenameTask(oldName, newName), func() error {
		return r.renameTag(oldName, newName, false)
	})
}

func (r *Runner) renameTag(oldName, newName string, resuming bool) error {
	dict, err := tags.Load(r.Root)
	if err != nil {
		return err
	}
	err = dict.Rename(oldName, newName)
	if resuming && errors.Is(err, dberr.ErrUnknownTag) {
		if _, idErr := dict.ID(newName); idErr == nil {
			r.Log.Info().Str("old", oldName).Str("new", newName).Msg("rename already applied")
			return nil
		}
	}
	if err != nil {
		return err
	}
	if err := dict.Save(r.Root); err != nil {
		return err
	}
	r.Log.Info().Str("old", oldName).Str("new", newName).Msg("tag renamed")
	return nil
}

// MergeResult describes a finished merge.
type MergeResult struct {
	Survivor       string
	Removed        string
	FilesRewritten int
}

// MergeTags folds two tags into one. The tag recorded on more days survives;
// on a tie b survives. Every day file mentioning the other tag is rewritten,
// the other tag leaves the dictionary and the caches are rebuilt.
func (r *Runner) MergeTags(a, b string) (MergeResult, error) {
	var res MergeResult
	for _, name := range []string{a, b} {
		if err := tags.ValidateName(name); err != nil {
			return res, err
		}
	}
	if a == b {
		return res, fmt.Errorf("%w: cannot merge tag %q with itself", dberr.ErrInvalidArgument, a)
	}
	err := r.run(ledger.MergeTask(a, b), func() error {
		var err error
		res, err = r.mergeTags(a, b, false)
		return err
	})
	return res, err
}

func (r *Runner) mergeTags(a, b string, resuming bool) (MergeResult, error) {
	var res MergeResult
	dict, err := tags.Load(r.Root)
	if err != nil {
		return res, err
	}
	idA, errA := dict.ID(a)
	idB, errB := dict.ID(b)
	if resuming && (errA == nil) != (errB == nil) {
		// The dictionary was saved without the removed tag, so every day
		// file was already rewritten. Only the caches may be stale.
		res.Survivor, res.Removed = b, a
		if errB != nil {
			res.Survivor, res.Removed = a, b
		}
		r.Log.Info().Str("survivor", res.Survivor).Msg("merge already applied, rebuilding caches")
		_, err := r.rebuild()
		return res, err
	}
	if errA != nil {
		return res, errA
	}
	if errB != nil {
		return res, errB
	}

	// Caches are only rewritten at the very end, so a resumed merge sees the
	// same counts and picks the same survivor.
	counts, err := cache.TagDayCounts(r.Root)
	if err != nil {
		return res, err
	}
	keep, drop := idB, idA
	res.Survivor, res.Removed = b, a
	if counts[idA] > counts[idB] {
		keep, drop = idA, idB
		res.Survivor, res.Removed = a, b
	}
	r.Log.Info().
		Str("survivor", res.Survivor).Int("survivor_days", counts[keep]).
		Str("removed", res.Removed).Int("removed_days", counts[drop]).
		Msg("merging tags")

	files, err := cache.ListDayFiles(r.Root, r.Log)
	if err != nil {
		return res, err
	}
	for _, f := range files {
		entries, err := entry.ReadFile(f.Path)
		if err != nil {
			return res, err
		}
		out, changed := entry.ReplaceTag(entries, drop, keep)
		if !changed {
			continue
		}
		if err := entry.WriteFile(f.Path, out); err != nil {
			return res, fmt.Errorf("rewrite %s: %w", f.Path, err)
		}
		res.FilesRewritten++
	}

	if err := dict.Remove(drop); err != nil {
		return res, err
	}
	if err := dict.Save(r.Root); err != nil {
		return res, err
	}
	if _, err := r.rebuild(); err != nil {
		return res, err
	}
	return res, nil
}

// Migrate imports a legacy plain-text tree and rebuilds the caches. The
// ledger records a rebuild: after a crash Resume restores the caches, and
// running Migrate again writes the day files the crash cut off.
func (r *Runner) Migrate(legacyDir string) (legacy.ImportStats, error) {
	var stats legacy.ImportStats
	err := r.run(ledger.RebuildTask(), func() error {
		dict, err := tags.LoadOrEmpty(r.Root)
		if err != nil {
			return err
		}
		stats, err = legacy.Import(legacyDir, r.Root, dict, r.Log)
		if err != nil {
			return err
		}
		r.Log.Info().
			Int("files", stats.Files).
			Int("entries", stats.Entries).
			Int("new_tags", stats.NewTags).
			Int("skipped", stats.Skipped).
			Msg("legacy data imported")
		_, err = r.rebuild()
		return err
	})
	return stats, err
}

// Observation is one entry to add, with tags given by name.
type Observation struct {
	Date     time.Time
	Hour     uint8
	Mental   uint8
	Physical uint8
	Tags     []string
}

// AddEntry appends an observation to its day file, adding unknown tag names
// to the dictionary, and refreshes the caches of that year.
func (r *Runner) AddEntry(obs Observation) error {
	if obs.Hour > entry.MaxHour {
		return fmt.Errorf("%w: hour %d", dberr.ErrInvalidArgument, obs.Hour)
	}
	for _, name := range obs.Tags {
		if err := tags.ValidateName(name); err != nil {
			return err
		}
	}
	return r.run(ledger.RebuildTask(), func() error {
		dict, err := tags.LoadOrEmpty(r.Root)
		if err != nil {
			return err
		}
		before := dict.Len()
		e := entry.Entry{Hour: obs.Hour, Mental: obs.Mental, Physical: obs.Physical}
		for _, name := range obs.Tags {
			id, err := dict.Insert(name)
			if err != nil {
				return err
			}
			if !e.HasTag(id) {
				e.Tags = append(e.Tags, id)
			}
		}
		if dict.Len() != before {
			if err := dict.Save(r.Root); err != nil {
				return err
			}
		}

		path := entry.DayFilePath(r.Root, obs.Date)
		if err := entry.AppendFile(path, e); err != nil {
			return fmt.Errorf("append %s: %w", path, err)
		}
		r.Log.Info().Str("path", path).Uint8("hour", e.Hour).Msg("entry added")
		_, err = cache.RebuildYear(r.Root, obs.Date.Year(), r.Log)
		return err
	})
}

// Backup writes the database as a PNG image to w. Ledger files are not part
// of the image.
func (r *Runner) Backup(w io.Writer, opts backup.Options) (int, error) {
	var files int
	opts.Skip = ledger.IsLedgerFile
	err := r.run(ledger.NoTask(), func() error {
		var err error
		files, err = backup.Pack(r.Root, w, opts)
		if err == nil {
			r.Log.Info().Int("files", files).Msg("backup written")
		}
		return err
	})
	return files, err
}

// Resume finishes the task left recorded by an interrupted operation and
// returns it. With nothing recorded it returns ledger.NoTask().
func (r *Runner) Resume() (ledger.Task, error) {
	l, err := ledger.Activate(r.Root, ledger.NoTask())
	if err == nil {
		return ledger.NoTask(), l.Deactivate()
	}
	var busy *ledger.BusyError
	if !errors.As(err, &busy) {
		return ledger.Task{}, err
	}

	task := busy.Task
	r.Log.Warn().Str("task", task.String()).Msg("resuming interrupted task")
	var runErr error
	switch task.Kind {
	case ledger.KindNone:
	case ledger.KindRebuild:
		_, runErr = r.rebuild()
	case ledger.KindRename:
		runErr = r.renameTag(task.Args[0], task.Args[1], true)
	case ledger.KindMerge:
		_, runErr = r.mergeTags(task.Args[0], task.Args[1], true)
	}
	return task, r.finish(busy.Ledger, runErr)
}
