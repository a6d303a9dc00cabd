package cache

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/freeeve/statdiary/internal/dberr"
	"github.com/freeeve/statdiary/internal/walk"
)

// DayLine is one parsed month cache line.
type DayLine struct {
	File     string
	Overview Overview
}

// MonthLine is one parsed year cache line.
type MonthLine struct {
	Month    int
	Averages ScoreAverages
}

func readLines(path string, parse func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := parse(line); err != nil {
			return fmt.Errorf("%w: %s:%d: %v", dberr.ErrFormat, path, lineNum, err)
		}
	}
	return scanner.Err()
}

// ReadMonthCache parses a month_cache.txt file.
func ReadMonthCache(path string) ([]DayLine, error) {
	var lines []DayLine
	err := readLines(path, func(line string) error {
		file, rest, ok := strings.Cut(line, " | ")
		if !ok {
			return errors.New("missing file name separator")
		}
		ov, err := parseOverview(rest)
		if err != nil {
			return err
		}
		lines = append(lines, DayLine{File: file, Overview: ov})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// ReadYearCache parses a year_cache.txt file.
func ReadYearCache(path string) ([]MonthLine, error) {
	var lines []MonthLine
	err := readLines(path, func(line string) error {
		parts := strings.Split(line, "|")
		if len(parts) != 3 {
			return fmt.Errorf("want 3 sections, got %d", len(parts))
		}
		month, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || month < 1 || month > 12 {
			return fmt.Errorf("bad month %q", parts[0])
		}
		mental, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return err
		}
		physical, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return err
		}
		lines = append(lines, MonthLine{Month: month, Averages: ScoreAverages{Mental: mental, Physical: physical}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// TagDayCounts counts, per tag id, the number of days whose cached overview
// lists the tag. Only existing month caches are consulted, so the counts
// describe the last rebuild rather than the current day files. Months
// without a cache contribute nothing.
func TagDayCounts(root string) (map[uint16]int, error) {
	counts := make(map[uint16]int)
	years, err := walk.ListSorted(DataDir(root))
	if errors.Is(err, fs.ErrNotExist) {
		return counts, nil
	}
	if err != nil {
		return nil, err
	}
	for _, y := range years {
		if _, err := walk.ParseYear(y); err != nil {
			continue
		}
		months, err := walk.ListSorted(y.Path)
		if err != nil {
			return nil, err
		}
		for _, m := range months {
			if _, err := walk.ParseMonth(m); err != nil {
				continue
			}
			days, err := ReadMonthCache(filepath.Join(m.Path, MonthCacheName))
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, err
			}
			for _, d := range days {
				for _, t := range d.Overview.Tags {
					counts[t]++
				}
			}
		}
	}
	return counts, nil
}
