package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"stock_history/internal/app/di"
	"stock_history/internal/feature/bars/domain/entity"
	"stock_history/internal/feature/bars/usecase"
	"stock_history/internal/platform/config"
	"stock_history/internal/platform/export"
	"stock_history/internal/platform/logger"

	"github.com/google/subcommands"
)

// stdout はテストで差し替えられます。
var stdout io.Writer = os.Stdout

var commands = []subcommands.Command{
	&preloadCmd{},
	&importCmd{},
	&purgeCmd{},
	&scanCmd{},
	&doctorCmd{},
	&statusCmd{},
	&exportCmd{},
}

// withContainer は設定を読み込んでコンテナを構築し、fnの終了後に接続を閉じます。
func withContainer(ctx context.Context, fn func(*di.Container) error) subcommands.ExitStatus {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	lg := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	c, err := di.Build(ctx, cfg, lg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer func() { _ = c.Close() }()

	if err := fn(c); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

type preloadCmd struct {
	period string
}

func (*preloadCmd) Name() string     { return "preload" }
func (*preloadCmd) Synopsis() string { return "reconcile every watch list symbol (or the given symbols)" }
func (*preloadCmd) Usage() string {
	return `barctl preload [-period 1mo] [SYMBOL...]

  Reconciles each symbol against the trading calendar and fills gaps within
  the request budget. Stops early once the governor reports power save.
`
}

func (p *preloadCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.period, "period", usecase.DefaultPeriod, "lookback period (1mo, 3mo, 6mo, 1y)")
}

func (p *preloadCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withContainer(ctx, func(c *di.Container) error {
		symbols := make([]string, 0, f.NArg())
		for _, a := range f.Args() {
			symbols = append(symbols, upper(a))
		}
		if len(symbols) == 0 {
			codes, err := c.Symbols.ActiveCodes(ctx)
			if err != nil {
				return fmt.Errorf("failed to load symbols: %w", err)
			}
			symbols = codes
		}
		if len(symbols) == 0 {
			return fmt.Errorf("watch list is empty")
		}

		reports, err := c.Ingest.Preload(ctx, symbols, p.period)
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SYMBOL\tCOVERAGE\tMISSING\tSOURCE")
		for _, r := range reports {
			fmt.Fprintf(tw, "%s\t%.1f%%\t%d\t%s\n", r.Symbol, r.CoverageRatio*100, r.MissingCount, r.SourceLabel)
		}
		_ = tw.Flush()
		if len(reports) < len(symbols) && err == nil {
			fmt.Fprintf(stdout, "stopped after %d of %d symbols: power save\n", len(reports), len(symbols))
		}
		return err
	})
}

type importCmd struct {
	symbol string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import a legacy daily CSV as legacy-bridge bars" }
func (*importCmd) Usage() string {
	return `barctl import -symbol SYMBOL FILE.csv

  CSV header: date,open,high,low,close,volume. date is YYYY-MM-DD or epoch seconds.
`
}

func (p *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.symbol, "symbol", "", "ticker symbol of the file")
}

func (p *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if p.symbol == "" || f.NArg() != 1 {
		fmt.Fprint(os.Stderr, p.Usage())
		return subcommands.ExitUsageError
	}
	return withContainer(ctx, func(c *di.Container) error {
		fh, err := os.Open(f.Arg(0))
		if err != nil {
			return err
		}
		defer func() { _ = fh.Close() }()

		n, err := c.Ingest.ImportLegacy(ctx, upper(p.symbol), fh)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "imported %d rows for %s\n", n, upper(p.symbol))
		return nil
	})
}

type purgeCmd struct{}

func (*purgeCmd) Name() string           { return "purge" }
func (*purgeCmd) Synopsis() string       { return "delete every stored bar of a symbol to force a rebuild" }
func (*purgeCmd) Usage() string          { return "barctl purge SYMBOL\n" }
func (*purgeCmd) SetFlags(*flag.FlagSet) {}

func (p *purgeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, p.Usage())
		return subcommands.ExitUsageError
	}
	return withContainer(ctx, func(c *di.Container) error {
		n, err := c.Maintenance.Purge(ctx, upper(f.Arg(0)))
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "deleted %d rows for %s\n", n, upper(f.Arg(0)))
		return nil
	})
}

type scanCmd struct {
	symbol string
	period string
}

func (*scanCmd) Name() string     { return "scan" }
func (*scanCmd) Synopsis() string { return "flag probable bad prints (large move on thin volume)" }
func (*scanCmd) Usage() string {
	return `barctl scan [-symbol SYMBOL] [-period 1y]

  Flags rows whose close moved more than 30% on less than 5% of the
  20-day average volume. Scans every stored symbol when -symbol is empty.
`
}

func (p *scanCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.symbol, "symbol", "", "ticker symbol (default: all)")
	f.StringVar(&p.period, "period", "1y", "lookback period")
}

func (p *scanCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withContainer(ctx, func(c *di.Container) error {
		w := usecase.WindowFor(p.period, time.Now())
		glitches, err := c.Maintenance.ScanGlitches(ctx, upper(p.symbol), w.Start, w.End)
		if err != nil {
			return err
		}
		if len(glitches) == 0 {
			fmt.Fprintln(stdout, "no glitches found")
			return nil
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SYMBOL\tDATE\tCLOSE\tCHANGE\tVOLUME RATIO")
		for _, g := range glitches {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%+.1f%%\t%.3f\n", g.Symbol, g.Time.Format("2006-01-02"), g.Close, g.Change*100, g.VolumeRatio)
		}
		return tw.Flush()
	})
}

type doctorCmd struct{}

func (*doctorCmd) Name() string           { return "doctor" }
func (*doctorCmd) Synopsis() string       { return "per-symbol row counts and penny-price check" }
func (*doctorCmd) Usage() string          { return "barctl doctor\n" }
func (*doctorCmd) SetFlags(*flag.FlagSet) {}

func (*doctorCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withContainer(ctx, func(c *di.Container) error {
		stats, err := c.Maintenance.Doctor(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SYMBOL\tROWS\tMIN CLOSE\tSTATUS")
		for _, s := range stats {
			status := "ok"
			if s.Suspect {
				status = "SUSPECT"
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.Symbol, s.Rows, s.MinClose, status)
		}
		return tw.Flush()
	})
}

type statusCmd struct{}

func (*statusCmd) Name() string           { return "status" }
func (*statusCmd) Synopsis() string       { return "show today's request budget" }
func (*statusCmd) Usage() string          { return "barctl status\n" }
func (*statusCmd) SetFlags(*flag.FlagSet) {}

func (*statusCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withContainer(ctx, func(c *di.Container) error {
		st := c.Governor.Status(ctx)
		fmt.Fprintf(stdout, "date=%s used=%d remaining=%d limit=%d tokens=%.2f power_save=%t\n",
			st.Date, st.Used, st.Remaining, st.Limit, st.TokensAvailable, st.PowerSave)
		return nil
	})
}

type exportCmd struct {
	symbol string
	period string
	out    string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write stored bars of a symbol to a parquet file" }
func (*exportCmd) Usage() string {
	return "barctl export -symbol SYMBOL [-period 1y] [-o SYMBOL.parquet]\n"
}

func (p *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.symbol, "symbol", "", "ticker symbol")
	f.StringVar(&p.period, "period", "1y", "lookback period")
	f.StringVar(&p.out, "o", "", "output path (default SYMBOL.parquet)")
}

func (p *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	symbol := upper(p.symbol)
	if symbol == "" {
		fmt.Fprint(os.Stderr, p.Usage())
		return subcommands.ExitUsageError
	}
	out := p.out
	if out == "" {
		out = symbol + ".parquet"
	}
	return withContainer(ctx, func(c *di.Container) error {
		w := usecase.WindowFor(p.period, time.Now())
		bars, err := c.Bars.Query(ctx, symbol, entity.ResolutionDaily, w.Start, w.End)
		if err != nil {
			return err
		}
		if err := export.WriteParquetFile(out, bars); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Fprintf(stdout, "wrote %d rows to %s\n", len(bars), out)
		return nil
	})
}
