package entry

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/freeeve/statdiary/internal/dberr"
)

// File extensions for day files.
const (
	DataFileExtension   = "dat" // canonical binary format
	LegacyFileExtension = "txt" // plain-text files consumed by the importer
)

// DayFileName returns the canonical name for a day file, e.g. "14-3.dat"
// for Wednesday the 14th. Weekday codes run 1 (Monday) to 7 (Sunday).
func DayFileName(day int, weekday time.Weekday) string {
	return fmt.Sprintf("%d-%d.%s", day, WeekdayCode(weekday), DataFileExtension)
}

// WeekdayCode converts a time.Weekday to its 1-7 Monday-first code.
func WeekdayCode(w time.Weekday) int {
	if w == time.Sunday {
		return 7
	}
	return int(w)
}

// WeekdayFromCode is the inverse of WeekdayCode.
func WeekdayFromCode(code int) (time.Weekday, bool) {
	if code < 1 || code > 7 {
		return 0, false
	}
	return time.Weekday(code % 7), true
}

// ParseDayFileName extracts day of month and weekday from a canonical day
// file name.
func ParseDayFileName(name string) (day int, weekday time.Weekday, err error) {
	stem, ok := strings.CutSuffix(name, "."+DataFileExtension)
	if !ok {
		return 0, 0, fmt.Errorf("%w: day file %q lacks .%s extension", dberr.ErrFormat, name, DataFileExtension)
	}
	dayStr, codeStr, ok := strings.Cut(stem, "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: day file %q is not <day>-<weekday>", dberr.ErrFormat, name)
	}
	day, err = strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return 0, 0, fmt.Errorf("%w: day file %q has invalid day", dberr.ErrFormat, name)
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: day file %q has invalid weekday", dberr.ErrFormat, name)
	}
	weekday, ok = WeekdayFromCode(code)
	if !ok {
		return 0, 0, fmt.Errorf("%w: day file %q has invalid weekday", dberr.ErrFormat, name)
	}
	return day, weekday, nil
}

// DayFilePath returns root/data/<year>/<month>/<day file> for date.
func DayFilePath(root string, date time.Time) string {
	return filepath.Join(root, "data",
		strconv.Itoa(date.Year()),
		strconv.Itoa(int(date.Month())),
		DayFileName(date.Day(), date.Weekday()))
}

// ReadFile loads and decodes a day file.
func ReadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	entries, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// WriteFile replaces the day file at path with entries. Readers see either
// the old or the new content, never a mix.
func WriteFile(path string, entries []Entry) error {
	data, err := Encode(entries)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

// AppendFile adds entries to the end of the day file at path, creating it
// and its parent folders as needed. The file is rewritten in one atomic
// replace, so a crash leaves either the old or the new day.
func AppendFile(path string, entries ...Entry) error {
	existing, err := ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return WriteFile(path, append(existing, entries...))
}
