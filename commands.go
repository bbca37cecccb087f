package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cfg "github.com/maastricht-university/pitchbench/config"
	"github.com/maastricht-university/pitchbench/logger"
	"github.com/maastricht-university/pitchbench/metrics"
	"github.com/maastricht-university/pitchbench/normalize"
	"github.com/maastricht-university/pitchbench/orchestrator"
	"github.com/maastricht-university/pitchbench/pitch"
	"github.com/maastricht-university/pitchbench/report"
)

type app struct {
	cfgPath string
	v       *viper.Viper
	conf    *cfg.Root
	log     *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: cfg.NewViper()}
	root := &cobra.Command{
		Use:               "pitchbench",
		Short:             "Normalize and score pitch-tracker predictions against ground truth",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default config/$CONFIG_ENV/config.yaml, then pitchbench.yaml)")
	pf.String(cfg.KeyLogLevel, "", "log level: debug, info, warn, error")
	pf.String(cfg.KeyLogFormat, "", "log format: text or json")
	pf.Int(cfg.KeyWorkers, 0, "files processed in parallel")
	pf.Float64(cfg.KeyTolerance, 0, "pitch tolerance in cents")
	pf.Bool(cfg.KeyProgress, false, "draw progress bars on stderr")
	pf.Bool(cfg.KeyAverage, false, "append an AVERAGE row to metrics tables")
	for _, k := range []string{cfg.KeyLogLevel, cfg.KeyLogFormat, cfg.KeyWorkers, cfg.KeyTolerance, cfg.KeyProgress, cfg.KeyAverage} {
		if err := a.v.BindPFlag(k, pf.Lookup(k)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		a.normalizeCmd(),
		a.evaluateCmd(),
		a.runCmd(),
		a.summarizeCmd(),
		a.checkCmd(),
	)
	return root
}

// setup loads the configuration, applies flag and environment overrides and
// builds the logger.
func (a *app) setup(*cobra.Command, []string) error {
	var (
		err      error
		fallback bool
	)
	if a.cfgPath != "" {
		a.conf, err = cfg.LoadFile(a.cfgPath)
	} else {
		a.conf, err = cfg.Load()
		if errors.Is(err, fs.ErrNotExist) {
			a.conf, err, fallback = cfg.Default(), nil, true
		}
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.conf.ApplyOverrides(a.v)
	if err := a.conf.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if a.log, err = logger.New(a.conf.Pipeline.LogLvl, a.conf.Pipeline.LogFormat); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if fallback {
		a.log.Debug("no config file found, using defaults")
	}
	return nil
}

func (a *app) normalizeCmd() *cobra.Command {
	var gtPath, predPath, outPath string
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Align one prediction onto a ground-truth time grid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gt, err := pitch.ReadSeriesFile(gtPath)
			if err != nil {
				return err
			}
			pred, err := pitch.ReadSeriesFile(predPath)
			if err != nil {
				return err
			}
			out, err := normalize.To(gt, pred)
			switch {
			case errors.Is(err, pitch.ErrEmptyPrediction):
				a.log.WithField("file", predPath).Warn("prediction has no frames, writing an all-unvoiced series")
			case err != nil:
				return pitch.AtPath(err, predPath)
			}
			if outPath == "" {
				return pitch.WriteSeries(cmd.OutOrStdout(), out)
			}
			return pitch.WriteSeriesFile(outPath, out)
		},
	}
	cmd.Flags().StringVar(&gtPath, "gt", "", "ground-truth CSV")
	cmd.Flags().StringVar(&predPath, "pred", "", "raw prediction CSV")
	cmd.Flags().StringVar(&outPath, "out", "", "output CSV (default stdout)")
	_ = cmd.MarkFlagRequired("gt")
	_ = cmd.MarkFlagRequired("pred")
	return cmd
}

func (a *app) evaluateCmd() *cobra.Command {
	var (
		gtPath, predPath string
		norm             bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score one prediction and print its metrics row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gt, err := pitch.ReadSeriesFile(gtPath)
			if err != nil {
				return err
			}
			pred, err := pitch.ReadSeriesFile(predPath)
			if err != nil {
				return err
			}
			if norm {
				pred, err = normalize.To(gt, pred)
				if errors.Is(err, pitch.ErrEmptyPrediction) {
					a.log.WithField("file", predPath).Warn("prediction has no frames, scoring it as all-unvoiced")
				} else if err != nil {
					return pitch.AtPath(err, predPath)
				}
			}
			scores, err := metrics.NewEvaluator(a.conf.Evaluation.ToleranceCents).Evaluate(gt, pred)
			if err != nil {
				return pitch.AtPath(err, predPath)
			}
			if !scores.Defined() {
				a.log.WithField("file", gtPath).Warn("no voiced ground-truth frames, RPA, RCA and VR are undefined")
			}
			rec := metrics.Record{Filename: filepath.Base(predPath), Scores: scores}
			return metrics.WriteCSV(cmd.OutOrStdout(), []metrics.Record{rec}, false)
		},
	}
	cmd.Flags().StringVar(&gtPath, "gt", "", "ground-truth CSV")
	cmd.Flags().StringVar(&predPath, "pred", "", "prediction CSV, already on the ground-truth grid unless --normalize")
	cmd.Flags().BoolVar(&norm, "normalize", false, "normalize the prediction first")
	_ = cmd.MarkFlagRequired("gt")
	_ = cmd.MarkFlagRequired("pred")
	return cmd
}

func (a *app) selection(models, conditions []string) (orchestrator.Selection, error) {
	sel := orchestrator.Selection{Models: models}
	for _, c := range conditions {
		tag, err := pitch.ParseCondition(c)
		if err != nil {
			return sel, err
		}
		sel.Conditions = append(sel.Conditions, tag)
	}
	return sel, nil
}

func (a *app) runCmd() *cobra.Command {
	var (
		models, conditions []string
		skipNormalize      bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Normalize and evaluate every configured model and condition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := a.selection(models, conditions)
			if err != nil {
				return err
			}
			sel.SkipNormalize = skipNormalize
			p := orchestrator.NewPipeline(a.conf, a.log)
			if a.conf.Evaluation.Progress {
				p.WithProgress(cmd.ErrOrStderr())
			}
			rep, err := p.Run(cmd.Context(), sel)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rep.BundlePath)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&models, "model", nil, "restrict to these models (repeatable)")
	cmd.Flags().StringSliceVar(&conditions, "condition", nil, "restrict to these conditions (repeatable)")
	cmd.Flags().BoolVar(&skipNormalize, "skip-normalize", false, "evaluate existing normalized predictions only")
	return cmd
}

func (a *app) summarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize",
		Short: "Aggregate metrics tables into summary.csv, summary.xlsx and breakdowns.csv",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := report.Build(a.conf, a.log)
			if err != nil {
				return err
			}
			csvPath := filepath.Join(a.conf.Paths.Summary, "summary.csv")
			if err := report.WriteCSVFile(csvPath, s); err != nil {
				return err
			}
			xlsxPath := filepath.Join(a.conf.Paths.Summary, "summary.xlsx")
			if err := report.WriteWorkbook(xlsxPath, s); err != nil {
				return err
			}
			fields := logrus.Fields{"csv": csvPath, "xlsx": xlsxPath, "stats": len(s.Stats)}
			if len(s.Breakdowns) > 0 {
				bdPath := filepath.Join(a.conf.Paths.Summary, "breakdowns.csv")
				if err := report.WriteBreakdownsCSVFile(bdPath, s); err != nil {
					return err
				}
				fields["breakdowns"] = bdPath
			}
			a.log.WithFields(fields).Info("summary written")
			return nil
		},
	}
}

func (a *app) checkCmd() *cobra.Command {
	var models, conditions []string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report which ground-truth and prediction directories are present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := a.selection(models, conditions)
			if err != nil {
				return err
			}
			st, err := orchestrator.NewPipeline(a.conf, a.log).Check(sel)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROLE\tMODEL\tCONDITION\tFILES\tPATH")
			missing := 0
			for _, d := range st {
				files := fmt.Sprint(d.CSVFiles)
				if !d.Exists {
					files = "missing"
					if d.Role == "ground_truth" {
						missing++
					}
				}
				model := d.Model
				if model == "" {
					model = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Role, model, d.Condition, files, d.Path)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if missing > 0 {
				return fmt.Errorf("%d ground-truth directories missing", missing)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&models, "model", nil, "restrict to these models")
	cmd.Flags().StringSliceVar(&conditions, "condition", nil, "restrict to these conditions")
	return cmd
}
