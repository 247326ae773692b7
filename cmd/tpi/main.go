package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/ONEcampaign/toughest-places-index/internal/app"
	"github.com/ONEcampaign/toughest-places-index/internal/config"
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
	"github.com/ONEcampaign/toughest-places-index/internal/index"
	"github.com/ONEcampaign/toughest-places-index/internal/infrastructure"
	"github.com/ONEcampaign/toughest-places-index/internal/services"
)

const usage = `Usage: tpi [-config file] <command> [flags]

Commands:
  run        compute the index and export the scores and workbook
  diagnose   run the data-quality audits
  stability  withhold countries and report rank movements
  tune       compare nearest-neighbour imputation settings
  serve      compute the index and serve it over HTTP
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("tpi failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	// a missing .env is normal
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	global := flag.NewFlagSet("tpi", flag.ContinueOnError)
	configPath := global.String("config", os.Getenv("TPI_CONFIG"), "YAML configuration file")
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("no command given")
	}
	command, rest := global.Arg(0), global.Args()[1:]

	cmd, ok := commands[command]
	if !ok {
		global.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
	opts, err := cmd.parse(rest)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	a, err := app.NewApplication(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = infrastructure.EnsureTraceID(ctx)
	infrastructure.WithComponent(infrastructure.LoggerWithContext(ctx), "cli").
		Info("command started", slog.String("command", command))

	runErr := cmd.run(ctx, a, opts, stdout)
	if err := a.Stop(context.Background()); err != nil {
		a.Logger.Error("shutdown failed", slog.String("error", err.Error()))
	}
	return runErr
}

type options struct {
	top      int
	checks   string
	groupBy  string
	column   string
	asJSON   bool
	noExport bool
}

type command struct {
	flags func(*flag.FlagSet, *options)
	run   func(context.Context, *app.Application, options, io.Writer) error
}

func (c command) parse(args []string) (options, error) {
	var opts options
	set := flag.NewFlagSet("tpi", flag.ContinueOnError)
	if c.flags != nil {
		c.flags(set, &opts)
	}
	return opts, set.Parse(args)
}

var commands = map[string]command{
	"run": {
		flags: func(set *flag.FlagSet, o *options) {
			set.IntVar(&o.top, "top", 20, "number of countries to print, 0 for all")
			set.BoolVar(&o.noExport, "no-export", false, "skip writing the output files")
		},
		run: runPipeline,
	},
	"diagnose": {
		flags: func(set *flag.FlagSet, o *options) {
			set.StringVar(&o.checks, "checks", "", "comma separated checks, all when empty")
			set.StringVar(&o.groupBy, "group-by", "", "grouping for the audits")
			set.StringVar(&o.column, "column", "", "restrict the collinearity check to one indicator")
		},
		run: runDiagnose,
	},
	"stability": {
		flags: func(set *flag.FlagSet, o *options) {
			set.BoolVar(&o.asJSON, "json", false, "print the report as JSON")
		},
		run: runStability,
	},
	"tune": {run: runTune},
	"serve": {
		run: func(ctx context.Context, a *app.Application, _ options, _ io.Writer) error {
			return a.Serve(ctx)
		},
	},
}

func runPipeline(ctx context.Context, a *app.Application, o options, stdout io.Writer) error {
	var (
		res     *services.RunResult
		written []string
		err     error
	)
	if o.noExport {
		res, err = a.Index.Run(ctx)
	} else {
		res, written, err = a.RunPipeline(ctx)
	}
	if err != nil {
		return err
	}
	for _, p := range written {
		fmt.Fprintf(stdout, "wrote %s\n", p)
	}
	if res.Scores == nil {
		return nil
	}
	return printScores(stdout, res.Scores, a.Index.Names(), o.top)
}

func printScores(w io.Writer, scores *frame.Frame, names map[string]string, top int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "rank\tiso_code\tcountry\tscore")
	for i, code := range scores.Index() {
		if top > 0 && i == top {
			break
		}
		name, ok := names[code]
		if !ok {
			name = code
		}
		score := ""
		if v := scores.Value(code, index.ScoreColumn); !frame.IsNull(v) {
			score = fmt.Sprintf("%.1f", v)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, code, name, score)
	}
	return tw.Flush()
}

func runDiagnose(ctx context.Context, a *app.Application, o options, stdout io.Writer) error {
	req := services.DiagnosticsRequest{Grouping: o.groupBy, Column: o.column}
	if o.checks != "" {
		for _, name := range strings.Split(o.checks, ",") {
			check, err := services.ParseCheck(strings.TrimSpace(name))
			if err != nil {
				return err
			}
			req.Checks = append(req.Checks, check)
		}
	}
	rep, err := a.Index.Diagnose(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(stdout, rep)
}

func runStability(ctx context.Context, a *app.Application, o options, stdout io.Writer) error {
	report, written, err := a.RunStability(ctx)
	if err != nil {
		return err
	}
	for _, p := range written {
		fmt.Fprintf(stdout, "wrote %s\n", p)
	}
	if o.asJSON {
		return writeJSON(stdout, nullSafe(report))
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "iso_code\twithheld\tbaseline\tperturbed\tshift")
	for _, s := range report.Shifts {
		fmt.Fprintf(tw, "%s\t%t\t%d\t%d\t%+d\n", s.ISOCode, s.Withheld, s.BaselineRank, s.PerturbedRank, s.Shift)
	}
	return tw.Flush()
}

func runTune(ctx context.Context, a *app.Application, _ options, stdout io.Writer) error {
	reports, err := a.Index.TuneNeighborRange(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "neighbors\ttrials\tmean_abs_pct_deviation\tskipped")
	for _, r := range reports {
		fmt.Fprintf(tw, "%d\t%d\t%.4f\t%d\n", r.Neighbors, r.Trials, r.MeanAbsPctDeviation, r.Skipped)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if best := services.BestNeighbors(reports); best != nil {
		fmt.Fprintf(stdout, "best: %d neighbors\n", best.Neighbors)
	}
	return nil
}

type shiftJSON struct {
	ISOCode        string   `json:"iso_code"`
	Withheld       bool     `json:"withheld"`
	BaselineRank   int      `json:"baseline_rank"`
	PerturbedRank  int      `json:"perturbed_rank"`
	Shift          int      `json:"shift"`
	BaselineScore  *float64 `json:"baseline_score"`
	PerturbedScore *float64 `json:"perturbed_score"`
	ScoreChangePct *float64 `json:"score_change_pct"`
}

// nullSafe replaces NaN values, which JSON cannot encode, with null.
func nullSafe(report *index.StabilityReport) any {
	out := struct {
		Withheld []string    `json:"withheld"`
		Shifts   []shiftJSON `json:"shifts"`
	}{Withheld: report.Withheld}
	for _, s := range report.Shifts {
		out.Shifts = append(out.Shifts, shiftJSON{
			ISOCode:        s.ISOCode,
			Withheld:       s.Withheld,
			BaselineRank:   s.BaselineRank,
			PerturbedRank:  s.PerturbedRank,
			Shift:          s.Shift,
			BaselineScore:  nullable(s.BaselineScore),
			PerturbedScore: nullable(s.PerturbedScore),
			ScoreChangePct: nullable(s.ScoreChangePct),
		})
	}
	return out
}

func nullable(v float64) *float64 {
	if frame.IsNull(v) {
		return nil
	}
	return &v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
