package cache

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/freeeve/statdiary/internal/dberr"
	"github.com/freeeve/statdiary/internal/entry"
)

// Overview holds the statistics of one day file.
type Overview struct {
	MinMental   uint8
	MaxMental   uint8
	AvgMental   float64
	MinPhysical uint8
	MaxPhysical uint8
	AvgPhysical float64
	Tags        []uint16 // distinct, ascending
}

// ScoreAverages is the mean mental and physical score of a period.
type ScoreAverages struct {
	Mental   float64
	Physical float64
}

// ComputeOverview derives a day's statistics. A day without entries has no
// defined average and fails with dberr.ErrEmptyDayFile.
func ComputeOverview(entries []entry.Entry) (Overview, error) {
	if len(entries) == 0 {
		return Overview{}, dberr.ErrEmptyDayFile
	}

	first := entries[0]
	ov := Overview{
		MinMental:   first.Mental,
		MaxMental:   first.Mental,
		MinPhysical: first.Physical,
		MaxPhysical: first.Physical,
	}
	var mentalSum, physicalSum uint64
	seen := make(map[uint16]struct{})
	for _, e := range entries {
		mentalSum += uint64(e.Mental)
		physicalSum += uint64(e.Physical)
		ov.MinMental = min(ov.MinMental, e.Mental)
		ov.MaxMental = max(ov.MaxMental, e.Mental)
		ov.MinPhysical = min(ov.MinPhysical, e.Physical)
		ov.MaxPhysical = max(ov.MaxPhysical, e.Physical)
		for _, t := range e.Tags {
			seen[t] = struct{}{}
		}
	}
	n := float64(len(entries))
	ov.AvgMental = float64(mentalSum) / n
	ov.AvgPhysical = float64(physicalSum) / n

	ov.Tags = make([]uint16, 0, len(seen))
	for t := range seen {
		ov.Tags = append(ov.Tags, t)
	}
	slices.Sort(ov.Tags)
	return ov, nil
}

// averageOf returns the unweighted mean of per-day averages. Every day counts
// once regardless of how many entries it holds.
func averageOf(days []Overview) ScoreAverages {
	var avg ScoreAverages
	if len(days) == 0 {
		return avg
	}
	for _, d := range days {
		avg.Mental += d.AvgMental
		avg.Physical += d.AvgPhysical
	}
	n := float64(len(days))
	avg.Mental /= n
	avg.Physical /= n
	return avg
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// String renders the overview as stored in a month cache line:
// "<min_m> <max_m> <avg_m> | <min_p> <max_p> <avg_p> | <tag> <tag> ...".
func (o Overview) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %d %s | %d %d %s |",
		o.MinMental, o.MaxMental, formatFloat(o.AvgMental),
		o.MinPhysical, o.MaxPhysical, formatFloat(o.AvgPhysical))
	for _, t := range o.Tags {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(int(t)))
	}
	return b.String()
}

// String renders the averages as stored in a year cache line.
func (a ScoreAverages) String() string {
	return formatFloat(a.Mental) + " | " + formatFloat(a.Physical)
}

func parseScoreTriple(s string) (lo, hi uint8, avg float64, err error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return 0, 0, 0, fmt.Errorf("want 3 fields, got %d", len(fields))
	}
	l, err := strconv.ParseUint(fields[0], 10, 8)
	if err != nil {
		return 0, 0, 0, err
	}
	h, err := strconv.ParseUint(fields[1], 10, 8)
	if err != nil {
		return 0, 0, 0, err
	}
	avg, err = strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0, 0, 0, err
	}
	return uint8(l), uint8(h), avg, nil
}

// parseOverview is the inverse of Overview.String.
func parseOverview(s string) (Overview, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return Overview{}, fmt.Errorf("want 3 sections, got %d", len(parts))
	}
	var ov Overview
	var err error
	ov.MinMental, ov.MaxMental, ov.AvgMental, err = parseScoreTriple(parts[0])
	if err != nil {
		return Overview{}, fmt.Errorf("mental: %w", err)
	}
	ov.MinPhysical, ov.MaxPhysical, ov.AvgPhysical, err = parseScoreTriple(parts[1])
	if err != nil {
		return Overview{}, fmt.Errorf("physical: %w", err)
	}
	for _, f := range strings.Fields(parts[2]) {
		id, err := strconv.ParseUint(f, 10, 16)
		if err != nil {
			return Overview{}, fmt.Errorf("tag: %w", err)
		}
		ov.Tags = append(ov.Tags, uint16(id))
	}
	return ov, nil
}
