// Package tagstats counts how often each tag was recorded, overall, per hour
// of day and per weekday and hour.
package tagstats

import (
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/statdiary/internal/cache"
	"github.com/freeeve/statdiary/internal/entry"
)

// Counts maps tag id to number of occurrences.
type Counts map[uint16]int

func (c Counts) add(id uint16) { c[id]++ }

// Sums holds tag occurrence counts. Weekdays are indexed by time.Weekday.
type Sums struct {
	Overall   Counts        `json:"overall"`
	ByHour    [24]Counts    `json:"by_hour"`
	ByWeekday [7][24]Counts `json:"by_weekday"`
	Days      int           `json:"days"`
	Entries   int           `json:"entries"`
}

func newSums() *Sums {
	s := &Sums{Overall: make(Counts)}
	for h := range s.ByHour {
		s.ByHour[h] = make(Counts)
	}
	for d := range s.ByWeekday {
		for h := range s.ByWeekday[d] {
			s.ByWeekday[d][h] = make(Counts)
		}
	}
	return s
}

// Add records the entries of one day.
func (s *Sums) Add(weekday time.Weekday, entries []entry.Entry) {
	s.Days++
	for _, e := range entries {
		s.Entries++
		for _, id := range e.Tags {
			s.Overall.add(id)
			s.ByHour[e.Hour].add(id)
			s.ByWeekday[weekday][e.Hour].add(id)
		}
	}
}

// Compute reads every day file under root. Files are decoded in parallel
// and counted in calendar order.
func Compute(root string, log zerolog.Logger) (*Sums, error) {
	files, err := cache.ListDayFiles(root, log)
	if err != nil {
		return nil, err
	}

	days := make([][]entry.Entry, len(files))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			entries, err := entry.ReadFile(f.Path)
			days[i] = entries
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := newSums()
	for i, f := range files {
		s.Add(f.Weekday, days[i])
	}
	log.Debug().Int("days", s.Days).Int("entries", s.Entries).Msg("tag sums computed")
	return s, nil
}

// TagCount is one row of a ranking.
type TagCount struct {
	ID    uint16 `json:"id"`
	Name  string `json:"name,omitempty"`
	Count int    `json:"count"`
}

// Top ranks c by count, highest first, ties broken by id. n <= 0 returns
// every tag.
func (c Counts) Top(n int) []TagCount {
	out := make([]TagCount, 0, len(c))
	for id, count := range c {
		out = append(out, TagCount{ID: id, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ID < out[j].ID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
