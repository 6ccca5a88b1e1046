package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"ttcal/internal/batch"
	"ttcal/internal/config"
	"ttcal/internal/ics"
	appLog "ttcal/internal/log"
	"ttcal/internal/sheet"
	"ttcal/internal/timetable"
	"ttcal/internal/web"
)

// rootFlags holds the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	year       int
	debug      bool
}

// env is the wiring derived from the loaded configuration.
type env struct {
	cfg    *config.Config
	loc    *time.Location
	engine *timetable.Engine
	reader sheet.FileReader
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "ttcal",
		Short:         "Convert university timetable exports into iCalendar feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if flags.debug {
				appLog.SetLevel(appLog.LevelDebug)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "ttcal.yaml", "Path to config file (created with defaults if missing)")
	pf.IntVar(&flags.year, "year", 0, "Academic year (overrides config; default current year)")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newConvertCmd(flags),
		newWatchCmd(flags),
		newServeCmd(flags),
		newPreviewCmd(flags),
		newVerifyCmd(flags),
	)
	return root
}

// load reads the config and builds the conversion engine.
func (f *rootFlags) load() (*env, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", f.configPath, err)
	}
	if f.year > 0 {
		cfg.Year = f.year
	}

	loc, err := cfg.LoadLocation()
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", cfg.Timezone, err)
	}

	year := cfg.EffectiveYear(time.Now())
	engine, err := timetable.NewEngine(timetable.Options{
		Year:      year,
		Location:  loc,
		UIDDomain: cfg.UIDDomain,
		Resolver: timetable.Resolver{
			Delimiter: cfg.LocationDelimiter,
			Overrides: cfg.BuildingOverrides,
			Suffix:    cfg.AddressSuffix,
		},
	})
	if err != nil {
		return nil, err
	}

	appLog.Debug("effective config",
		"config_path", f.configPath,
		"timezone", cfg.Timezone,
		"year", year,
		"extensions", cfg.Extensions,
		"parallelism", cfg.Parallelism,
	)

	return &env{
		cfg:    cfg,
		loc:    loc,
		engine: engine,
		reader: sheet.FileReader{SkipRows: cfg.SkipRows},
	}, nil
}

func (e *env) envelope() ics.Envelope {
	return ics.Envelope{
		ProductID:    e.cfg.ProductID,
		CalendarName: e.cfg.CalendarName,
		TimeZone:     e.cfg.Timezone,
	}
}

func (e *env) driver(sink batch.Sink) (*batch.Driver, error) {
	return batch.NewDriver(e.engine, e.reader, sink, batch.Options{
		Extensions:  e.cfg.Extensions,
		OutputExt:   e.cfg.OutputExt,
		Parallelism: e.cfg.Parallelism,
		Envelope:    e.envelope(),
	})
}

func dirArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

func newConvertCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "convert [dir]",
		Short: "Convert every timetable export in dir into a sibling .ics file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.load()
			if err != nil {
				return err
			}
			d, err := e.driver(nil)
			if err != nil {
				return err
			}
			reports, err := d.Run(cmd.Context(), dirArg(args))
			if err != nil {
				return err
			}
			printReports(cmd, reports)
			return nil
		},
	}
}

func printReports(cmd *cobra.Command, reports []batch.Report) {
	out := cmd.OutOrStdout()
	if len(reports) == 0 {
		fmt.Fprintln(out, "no timetable files found")
		return
	}
	for _, rep := range reports {
		in := filepath.Base(rep.Input)
		if !rep.OK() {
			fmt.Fprintf(out, "%s: failed: %v\n", in, rep.Err)
			continue
		}
		fmt.Fprintf(out, "%s -> %s: %d events\n", in, filepath.Base(rep.Output), len(rep.Descriptors))
		for _, re := range rep.RowErrors {
			fmt.Fprintf(out, "  row %d skipped: %v\n", re.Index, re.Err)
		}
	}
}

// schedule runs job on the configured refresh cron until stop is called.
// A tick is skipped while the previous run is still converting.
func schedule(e *env, job func()) (stop func(), err error) {
	c := cron.New(
		cron.WithLocation(e.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(e.cfg.RefreshCron, job); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", e.cfg.RefreshCron, err)
	}
	c.Start()
	appLog.Info("refresh scheduled", "cron", e.cfg.RefreshCron)
	return func() { <-c.Stop().Done() }, nil
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir]",
		Short: "Convert dir now and again on every refresh tick",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.load()
			if err != nil {
				return err
			}
			d, err := e.driver(nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			dir := dirArg(args)

			run := func() {
				reports, err := d.Run(ctx, dir)
				if err != nil {
					appLog.Error("watch: conversion failed", err, "dir", dir)
					return
				}
				printReports(cmd, reports)
			}
			run()

			stop, err := schedule(e, run)
			if err != nil {
				return err
			}
			<-ctx.Done()
			stop()
			return nil
		},
	}
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [dir]",
		Short: "Convert dir and serve the generated feeds over HTTP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.load()
			if err != nil {
				return err
			}
			d, err := e.driver(nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			dir := dirArg(args)
			catalog := web.NewCatalog()

			refresh := func() {
				reports, err := d.Run(ctx, dir)
				if err != nil {
					appLog.Error("serve: conversion failed", err, "dir", dir)
					return
				}
				catalog.Update(reports)
			}
			refresh()

			stop, err := schedule(e, refresh)
			if err != nil {
				return err
			}
			defer stop()

			return web.NewServer(e.cfg, catalog).ListenAndServe(ctx)
		},
	}
}

func newPreviewCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "List the concrete class meetings described by one export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.load()
			if err != nil {
				return err
			}
			rows, err := e.reader.Read(args[0])
			if err != nil {
				return err
			}
			descs, rowErrs := e.engine.Rows(rows)

			res, err := ics.ExpandOccurrences(descs, ics.ExpandConfig{MaxOccurrencesPerEvent: limit})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, occ := range res.Occurrences {
				loc := occ.Location
				if loc == "" {
					loc = "-"
				}
				fmt.Fprintf(out, "%s  %s-%s  %-20s %s\n",
					occ.Start.Format("Mon 02 Jan 2006"),
					occ.Start.Format("15:04"),
					occ.End.Format("15:04"),
					occ.Summary,
					loc,
				)
			}
			fmt.Fprintf(out, "%d events, %d meetings, %d rows skipped\n",
				len(descs), len(res.Occurrences), len(rowErrs))
			for _, re := range rowErrs {
				fmt.Fprintf(out, "  %v\n", re)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "max", 0, "Per-event meeting cap (0 = default)")
	return cmd
}

func newVerifyCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file.ics|url>",
		Short: "Parse a generated calendar or published feed and report its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.load()
			if err != nil {
				return err
			}
			var body []byte
			if ics.IsURL(args[0]) {
				body, err = ics.NewFetcher(nil).Fetch(cmd.Context(), args[0])
			} else {
				body, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			descs, err := ics.ParseDocument(body, e.loc)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			total := 0
			for _, d := range descs {
				n, err := ics.CountOccurrences(d)
				if err != nil {
					return fmt.Errorf("%s: event %s: %w", args[0], d.UID, err)
				}
				total += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d events, %d meetings\n", filepath.Base(args[0]), len(descs), total)
			return nil
		},
	}
}
