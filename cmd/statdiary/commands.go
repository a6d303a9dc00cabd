package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/freeeve/statdiary/internal/backup"
	"github.com/freeeve/statdiary/internal/cache"
	"github.com/freeeve/statdiary/internal/dberr"
	"github.com/freeeve/statdiary/internal/ledger"
	"github.com/freeeve/statdiary/internal/maint"
	"github.com/freeeve/statdiary/internal/tags"
	"github.com/freeeve/statdiary/internal/tagstats"
)

func rebuildCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute every month and year cache from the day files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := a.runner().RebuildCaches()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %d years, %d months, %d days (%d entries)\n",
				sum.Years, sum.Months, sum.Days, sum.Entries)
			return nil
		},
	}
}

func resumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Finish a maintenance task interrupted by a crash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := a.runner().Resume()
			if err != nil {
				return err
			}
			if task == ledger.NoTask() {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to resume")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resumed %s task %q\n", task.Kind, task.String())
			return nil
		},
	}
}

func renameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a tag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.runner().RenameTag(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

func mergeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <a> <b>",
		Short: "Merge two tags; the one used on more days survives",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.runner().MergeTags(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merged %s into %s, %d day files rewritten\n",
				res.Removed, res.Survivor, res.FilesRewritten)
			return nil
		},
	}
}

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <legacy-dir>",
		Short: "Import a legacy plain-text diary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := a.runner().Migrate(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d files, %d entries, %d new tags\n",
				stats.Files, stats.Entries, stats.NewTags)
			return nil
		},
	}
}

func addCmd(a *app) *cobra.Command {
	var (
		date     string
		hour     int
		mental   int
		physical int
	)
	cmd := &cobra.Command{
		Use:   "add [tag...]",
		Short: "Add one observation",
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now()
			if date != "" {
				var err error
				day, err = time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("%w: date %q: %v", dberr.ErrInvalidArgument, date, err)
				}
			}
			if hour < 0 {
				hour = time.Now().Hour()
			}
			for name, v := range map[string]int{"hour": hour, "mental": mental, "physical": physical} {
				if v < 0 || v > 255 {
					return fmt.Errorf("%w: %s %d", dberr.ErrInvalidArgument, name, v)
				}
			}
			obs := maint.Observation{
				Date:     day,
				Hour:     uint8(hour),
				Mental:   uint8(mental),
				Physical: uint8(physical),
				Tags:     args,
			}
			if err := a.runner().AddEntry(obs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s %02d:00\n", day.Format(time.DateOnly), hour)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day of the observation, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&hour, "hour", -1, "hour of day 0-23 (default now)")
	cmd.Flags().IntVar(&mental, "mental", 0, "mental score")
	cmd.Flags().IntVar(&physical, "physical", 0, "physical score")
	_ = cmd.MarkFlagRequired("mental")
	_ = cmd.MarkFlagRequired("physical")
	return cmd
}

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the recorded maintenance task, if any",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cache.CheckRoot(a.cfg.Root); err != nil {
				return err
			}
			task, busy, err := ledger.Peek(a.cfg.Root)
			if err != nil {
				return err
			}
			if !busy {
				fmt.Fprintln(cmd.OutOrStdout(), "idle")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "busy: %s task %q\n", task.Kind, task.String())
			return nil
		},
	}
}

func summaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <year> [month]",
		Short: "Print cached averages of a year, or the day overviews of a month",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			yearDir := filepath.Join(cache.DataDir(a.cfg.Root), args[0])
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				months, err := cache.ReadYearCache(filepath.Join(yearDir, cache.YearCacheName))
				if err != nil {
					return err
				}
				for _, m := range months {
					fmt.Fprintf(out, "%-9s mental %6.2f  physical %6.2f\n",
						time.Month(m.Month), m.Averages.Mental, m.Averages.Physical)
				}
				return nil
			}

			days, err := cache.ReadMonthCache(filepath.Join(yearDir, args[1], cache.MonthCacheName))
			if err != nil {
				return err
			}
			dict, err := tags.LoadOrEmpty(a.cfg.Root)
			if err != nil {
				return err
			}
			for _, d := range days {
				ov := d.Overview
				fmt.Fprintf(out, "%-9s mental %3d-%3d avg %6.2f  physical %3d-%3d avg %6.2f ",
					d.File, ov.MinMental, ov.MaxMental, ov.AvgMental,
					ov.MinPhysical, ov.MaxPhysical, ov.AvgPhysical)
				for _, id := range ov.Tags {
					name, err := dict.Name(id)
					if err != nil {
						name = "#" + strconv.Itoa(int(id))
					}
					fmt.Fprintf(out, " %s", name)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func tagStatsCmd(a *app) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "tag-stats",
		Short: "Print tag usage counts as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sums, err := tagstats.Compute(a.cfg.Root, a.logger)
			if err != nil {
				return err
			}
			dict, err := tags.LoadOrEmpty(a.cfg.Root)
			if err != nil {
				return err
			}
			name := func(rows []tagstats.TagCount) []tagstats.TagCount {
				for i := range rows {
					rows[i].Name, _ = dict.Name(rows[i].ID)
				}
				return rows
			}

			report := struct {
				Days    int                         `json:"days"`
				Entries int                         `json:"entries"`
				Top     []tagstats.TagCount         `json:"top"`
				ByHour  map[int][]tagstats.TagCount `json:"by_hour"`
			}{
				Days:    sums.Days,
				Entries: sums.Entries,
				Top:     name(sums.Overall.Top(top)),
				ByHour:  make(map[int][]tagstats.TagCount),
			}
			for h, c := range sums.ByHour {
				if len(c) > 0 {
					report.ByHour[h] = name(c.Top(top))
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "tags per ranking (0 = all)")
	return cmd
}

func backupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <out.png>",
		Short: "Pack the database into a PNG image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := a.cfg.BackupLevel()
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			files, err := a.runner().Backup(&buf, backup.Options{Level: level})
			if err != nil {
				return err
			}
			if err := atomic.WriteFile(args[0], &buf); err != nil {
				return fmt.Errorf("write %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "packed %d files into %s\n", files, args[0])
			return nil
		},
	}
}

func restoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <in.png> <dst>",
		Short: "Unpack a backup image into an empty directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst := args[1]
			if entries, err := os.ReadDir(dst); err == nil && len(entries) > 0 {
				return fmt.Errorf("%w: %s is not empty", dberr.ErrInvalidArgument, dst)
			}
			if err := os.MkdirAll(dst, 0755); err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			files, err := backup.Unpack(f, dst)
			if err != nil {
				return err
			}
			a.logger.Info().Str("dst", dst).Int("files", files).Msg("backup restored")
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d files into %s\n", files, dst)
			return nil
		},
	}
}
