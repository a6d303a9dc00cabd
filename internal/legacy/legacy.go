// Package legacy reads the plain-text diary format used before the binary
// day files and converts it into the canonical database layout.
//
// A legacy tree mirrors the data tree: <legacy>/<year>/<month>/<file>, where
// each file is named "<day>-<WeekdayName>.txt" and holds one observation per
// line:
//
//	<ignored>|<hour>:<ignored>|<mental>,<ignored>|<physical>,<ignored>|<tag> <tag> ...
package legacy

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/freeeve/statdiary/internal/dberr"
	"github.com/freeeve/statdiary/internal/entry"
)

// Line is one parsed legacy observation. Tags are still names.
type Line struct {
	Hour     uint8
	Mental   uint8
	Physical uint8
	Tags     []string
}

// ParseLine parses one legacy observation line.
func ParseLine(s string) (Line, error) {
	fields := strings.Split(s, "|")
	if len(fields) != 5 {
		return Line{}, fmt.Errorf("want 5 fields, got %d", len(fields))
	}

	hourStr, _, _ := strings.Cut(fields[1], ":")
	hour, err := strconv.ParseUint(strings.TrimSpace(hourStr), 10, 8)
	if err != nil || hour > entry.MaxHour {
		return Line{}, fmt.Errorf("invalid hour %q", hourStr)
	}
	mentalStr, _, _ := strings.Cut(fields[2], ",")
	mental, err := strconv.ParseUint(strings.TrimSpace(mentalStr), 10, 8)
	if err != nil {
		return Line{}, fmt.Errorf("invalid mental score %q", mentalStr)
	}
	physicalStr, _, _ := strings.Cut(fields[3], ",")
	physical, err := strconv.ParseUint(strings.TrimSpace(physicalStr), 10, 8)
	if err != nil {
		return Line{}, fmt.Errorf("invalid physical score %q", physicalStr)
	}

	line := Line{Hour: uint8(hour), Mental: uint8(mental), Physical: uint8(physical)}
	if names := strings.Fields(fields[4]); len(names) > 0 {
		line.Tags = names
	}
	return line, nil
}

// ParseFile reads a legacy day file and resolves its tag names to ids with
// resolve. Repeated tags on a line are kept once.
func ParseFile(path string, resolve func(name string) (uint16, error)) ([]entry.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []entry.Entry
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		line, err := ParseLine(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", dberr.ErrFormat, path, lineNum, err)
		}

		e := entry.Entry{Hour: line.Hour, Mental: line.Mental, Physical: line.Physical}
		for _, name := range line.Tags {
			id, err := resolve(name)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, lineNum, err)
			}
			if !e.HasTag(id) {
				e.Tags = append(e.Tags, id)
			}
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return entries, nil
}

var weekdays = map[string]time.Weekday{}

func init() {
	for d := time.Sunday; d <= time.Saturday; d++ {
		weekdays[strings.ToLower(d.String())] = d
	}
}

// ParseFileName splits a legacy file name such as "14-Thursday.txt" into day
// of month and weekday. Weekday names are English and case-insensitive.
func ParseFileName(name string) (day int, weekday time.Weekday, err error) {
	stem, ok := strings.CutSuffix(name, "."+entry.LegacyFileExtension)
	if !ok {
		return 0, 0, fmt.Errorf("%w: legacy file %q lacks .%s extension", dberr.ErrFormat, name, entry.LegacyFileExtension)
	}
	dayStr, weekdayStr, ok := strings.Cut(stem, "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: legacy file %q is not <day>-<weekday>", dberr.ErrFormat, name)
	}
	day, err = strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return 0, 0, fmt.Errorf("%w: legacy file %q has invalid day", dberr.ErrFormat, name)
	}
	weekday, ok = weekdays[strings.ToLower(weekdayStr)]
	if !ok {
		return 0, 0, fmt.Errorf("%w: legacy file %q has invalid weekday", dberr.ErrFormat, name)
	}
	return day, weekday, nil
}
