package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/statdiary/internal/dberr"
	"github.com/freeeve/statdiary/internal/entry"
)

func writeDay(t *testing.T, root, year, month, name string, entries ...entry.Entry) string {
	t.Helper()
	path := filepath.Join(root, DataDirName, year, month, name)
	require.NoError(t, entry.WriteFile(path, entries))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// scenarioRoot builds a month with two days:
// day A: (9,80,70,[1]) (10,90,60,[2]); day B: (9,70,70,[1,2]).
func scenarioRoot(t *testing.T) string {
	root := t.TempDir()
	writeDay(t, root, "2024", "5", "3-5.dat",
		entry.Entry{Hour: 9, Mental: 80, Physical: 70, Tags: []uint16{1}},
		entry.Entry{Hour: 10, Mental: 90, Physical: 60, Tags: []uint16{2}},
	)
	writeDay(t, root, "2024", "5", "4-6.dat",
		entry.Entry{Hour: 9, Mental: 70, Physical: 70, Tags: []uint16{1, 2}},
	)
	return root
}

func TestComputeOverview(t *testing.T) {
	ov, err := ComputeOverview([]entry.Entry{
		{Hour: 9, Mental: 80, Physical: 70, Tags: []uint16{1}},
		{Hour: 10, Mental: 90, Physical: 60, Tags: []uint16{2, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, Overview{
		MinMental: 80, MaxMental: 90, AvgMental: 85,
		MinPhysical: 60, MaxPhysical: 70, AvgPhysical: 65,
		Tags: []uint16{1, 2},
	}, ov)

	_, err = ComputeOverview(nil)
	assert.ErrorIs(t, err, dberr.ErrEmptyDayFile)
}

func TestRebuildAggregation(t *testing.T) {
	root := scenarioRoot(t)

	sum, err := Rebuild(root, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, Summary{Years: 1, Months: 1, Days: 2, Entries: 3}, sum)

	monthCache := filepath.Join(root, DataDirName, "2024", "5", MonthCacheName)
	assert.Equal(t,
		"3-5.dat | 80 90 85 | 60 70 65 | 1 2\n"+
			"4-6.dat | 70 70 70 | 70 70 70 | 1 2\n",
		readFile(t, monthCache))

	yearCache := filepath.Join(root, DataDirName, "2024", YearCacheName)
	assert.Equal(t, "5 | 77.5 | 67.5\n", readFile(t, yearCache))

	days, err := ReadMonthCache(monthCache)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "3-5.dat", days[0].File)
	assert.Equal(t, 85.0, days[0].Overview.AvgMental)
	assert.Equal(t, []uint16{1, 2}, days[1].Overview.Tags)

	months, err := ReadYearCache(yearCache)
	require.NoError(t, err)
	assert.Equal(t, []MonthLine{{Month: 5, Averages: ScoreAverages{Mental: 77.5, Physical: 67.5}}}, months)
}

func TestRebuildCalendarOrder(t *testing.T) {
	root := t.TempDir()
	for _, m := range []string{"10", "2", "1"} {
		writeDay(t, root, "2023", m, "10-2.dat", entry.Entry{Hour: 1, Mental: 10, Physical: 20})
		writeDay(t, root, "2023", m, "2-1.dat", entry.Entry{Hour: 1, Mental: 30, Physical: 40})
	}

	_, err := Rebuild(root, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "1 | 20 | 30\n2 | 20 | 30\n10 | 20 | 30\n",
		readFile(t, filepath.Join(root, DataDirName, "2023", YearCacheName)))
	assert.Equal(t,
		"2-1.dat | 30 30 30 | 40 40 40 |\n10-2.dat | 10 10 10 | 20 20 20 |\n",
		readFile(t, filepath.Join(root, DataDirName, "2023", "10", MonthCacheName)))
}

func TestRebuildIsIdempotent(t *testing.T) {
	root := scenarioRoot(t)
	_, err := Rebuild(root, zerolog.Nop())
	require.NoError(t, err)
	monthCache := filepath.Join(root, DataDirName, "2024", "5", MonthCacheName)
	first := readFile(t, monthCache)

	_, err = Rebuild(root, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, first, readFile(t, monthCache))
}

func TestRebuildStructuralAnomalies(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, root string) string
		kind  error
	}{
		{"month 13", func(t *testing.T, root string) string {
			p := filepath.Join(root, DataDirName, "2024", "13")
			require.NoError(t, os.MkdirAll(p, 0755))
			return p
		}, dberr.ErrFoundUnknownFolder},
		{"month abc", func(t *testing.T, root string) string {
			p := filepath.Join(root, DataDirName, "2024", "abc")
			require.NoError(t, os.MkdirAll(p, 0755))
			return p
		}, dberr.ErrFoundUnknownFolder},
		{"month +3", func(t *testing.T, root string) string {
			p := filepath.Join(root, DataDirName, "2024", "+3")
			require.NoError(t, os.MkdirAll(p, 0755))
			return p
		}, dberr.ErrFoundUnknownFolder},
		{"stray file in year", func(t *testing.T, root string) string {
			p := filepath.Join(root, DataDirName, "2024", "notes.md")
			require.NoError(t, os.WriteFile(p, nil, 0644))
			return p
		}, dberr.ErrFoundUnknownFile},
		{"wrong extension", func(t *testing.T, root string) string {
			p := filepath.Join(root, DataDirName, "2024", "5", "5-7.txt")
			require.NoError(t, os.WriteFile(p, nil, 0644))
			return p
		}, dberr.ErrFoundUnknownFile},
		{"folder in month", func(t *testing.T, root string) string {
			p := filepath.Join(root, DataDirName, "2024", "5", "extra")
			require.NoError(t, os.MkdirAll(p, 0755))
			return p
		}, dberr.ErrFoundUnknownFolder},
		{"bad year", func(t *testing.T, root string) string {
			p := filepath.Join(root, DataDirName, "later")
			require.NoError(t, os.MkdirAll(p, 0755))
			return p
		}, dberr.ErrFoundUnknownFolder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := scenarioRoot(t)
			writeDay(t, root, "2023", "12", "31-7.dat", entry.Entry{Hour: 22, Mental: 50, Physical: 50})

			stale := filepath.Join(root, DataDirName, "2024", YearCacheName)
			require.NoError(t, os.WriteFile(stale, []byte("stale\n"), 0644))

			bad := tt.setup(t, root)

			_, err := Rebuild(root, zerolog.Nop())
			require.ErrorIs(t, err, tt.kind)
			var pe *dberr.PathError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, bad, pe.Path)

			// The earlier year completed before the failure.
			assert.Equal(t, "12 | 50 | 50\n",
				readFile(t, filepath.Join(root, DataDirName, "2023", YearCacheName)))
			if tt.name != "bad year" {
				assert.Equal(t, "stale\n", readFile(t, stale))
			}
		})
	}
}

func TestRebuildEmptyDayFile(t *testing.T) {
	root := scenarioRoot(t)
	empty := writeDay(t, root, "2024", "5", "9-4.dat")

	_, err := Rebuild(root, zerolog.Nop())
	require.ErrorIs(t, err, dberr.ErrEmptyDayFile)
	var pe *dberr.PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, empty, pe.Path)

	_, statErr := os.Stat(filepath.Join(root, DataDirName, "2024", "5", MonthCacheName))
	assert.ErrorIs(t, statErr, os.ErrNotExist, "no partial month cache")
}

func TestRebuildTruncatedDayFile(t *testing.T) {
	root := scenarioRoot(t)
	path := filepath.Join(root, DataDirName, "2024", "5", "4-6.dat")
	data := []byte(readFile(t, path))
	require.NoError(t, os.WriteFile(path, data[:len(data)-1], 0644))

	_, err := Rebuild(root, zerolog.Nop())
	assert.ErrorIs(t, err, dberr.ErrFormat)
}

func TestRebuildEmptyMonthAndNoData(t *testing.T) {
	root := t.TempDir()
	sum, err := Rebuild(root, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)

	require.NoError(t, os.MkdirAll(filepath.Join(root, DataDirName, "2024", "2"), 0755))
	_, err = Rebuild(root, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "", readFile(t, filepath.Join(root, DataDirName, "2024", YearCacheName)))
	assert.Equal(t, "", readFile(t, filepath.Join(root, DataDirName, "2024", "2", MonthCacheName)))
}

func TestRebuildInvalidRoot(t *testing.T) {
	_, err := Rebuild(filepath.Join(t.TempDir(), "missing"), zerolog.Nop())
	assert.ErrorIs(t, err, dberr.ErrInvalidPath)
}

func TestRebuildRemovesLeftovers(t *testing.T) {
	root := scenarioRoot(t)
	leftovers := []string{
		filepath.Join(root, DataDirName, "2024", "5", MonthCacheName+"4815162342"),
		filepath.Join(root, DataDirName, "2024", "5", "3-5.dat77"),
		filepath.Join(root, DataDirName, "2024", YearCacheName+"12"),
	}
	for _, p := range leftovers {
		require.NoError(t, os.WriteFile(p, []byte("half"), 0600))
	}

	files, err := ListDayFiles(root, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, files, 2)
	for _, p := range leftovers {
		assert.FileExists(t, p, "read-only walks leave temp files alone")
	}

	_, err = Rebuild(root, zerolog.Nop())
	require.NoError(t, err)
	for _, p := range leftovers {
		assert.NoFileExists(t, p)
	}
}

func TestRebuildKeepsForeignDigitSuffixedFiles(t *testing.T) {
	for _, rel := range []string{
		filepath.Join("2024", "5", "notes.txt2"),
		filepath.Join("2024", "5", "32-1.dat5"),
		filepath.Join("2024", "month_cache.txt9"),
	} {
		t.Run(rel, func(t *testing.T) {
			root := scenarioRoot(t)
			path := filepath.Join(root, DataDirName, rel)
			require.NoError(t, os.WriteFile(path, []byte("mine"), 0644))

			_, err := Rebuild(root, zerolog.Nop())
			assert.ErrorIs(t, err, dberr.ErrFoundUnknownFile)
			var pe *dberr.PathError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, path, pe.Path)
			assert.FileExists(t, path)

			_, err = ListDayFiles(root, zerolog.Nop())
			assert.ErrorIs(t, err, dberr.ErrFoundUnknownFile)
		})
	}
}

func TestTagDayCounts(t *testing.T) {
	root := scenarioRoot(t)
	writeDay(t, root, "2024", "6", "1-6.dat", entry.Entry{Hour: 1, Tags: []uint16{2, 2, 3}})

	counts, err := TagDayCounts(root)
	require.NoError(t, err)
	assert.Empty(t, counts, "no caches yet")

	_, err = Rebuild(root, zerolog.Nop())
	require.NoError(t, err)
	counts, err = TagDayCounts(root)
	require.NoError(t, err)
	assert.Equal(t, map[uint16]int{1: 2, 2: 3, 3: 1}, counts)
}

func TestRebuildYear(t *testing.T) {
	root := scenarioRoot(t)
	writeDay(t, root, "2023", "1", "2-1.dat", entry.Entry{Hour: 1, Mental: 1, Physical: 1})

	sum, err := RebuildYear(root, 2024, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Days)
	assert.FileExists(t, filepath.Join(root, DataDirName, "2024", YearCacheName))
	assert.NoFileExists(t, filepath.Join(root, DataDirName, "2023", YearCacheName))

	sum, err = RebuildYear(root, 1999, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
}

func TestListDayFiles(t *testing.T) {
	root := scenarioRoot(t)
	writeDay(t, root, "999", "12", "25-3.dat", entry.Entry{Hour: 1})
	writeDay(t, root, "2024", "11", "1-5.dat", entry.Entry{Hour: 1})

	files, err := ListDayFiles(root, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, files, 4)
	assert.Equal(t, DayFile{Year: 999, Month: 12, Day: 25, Weekday: time.Wednesday,
		Path: filepath.Join(root, DataDirName, "999", "12", "25-3.dat")}, files[0])
	assert.Equal(t, 3, files[1].Day)
	assert.Equal(t, 4, files[2].Day)
	assert.Equal(t, 11, files[3].Month)

	require.NoError(t, os.MkdirAll(filepath.Join(root, DataDirName, "2024", "0"), 0755))
	_, err = ListDayFiles(root, zerolog.Nop())
	assert.ErrorIs(t, err, dberr.ErrFoundUnknownFolder)
}
