package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rustyeddy/papertrader/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the backtest journal",
	Long: `Query and display backtest runs and trades from the SQLite journal.

Subcommands:
  runs   - List recent backtest runs
  show   - Show a run and its trades as Org
  org    - Export a run as an Org file
  trade  - Get details of a specific trade by ID
  day    - List trades closed on a specific day

Examples:
  papertrader journal runs --limit 10
  papertrader journal show <run-id>
  papertrader journal day 2024-01-15`,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent backtest runs",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a backtest run with its trades",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

var journalOrgCmd = &cobra.Command{
	Use:   "org <run-id>",
	Short: "Write a backtest run as an Org file",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalOrg,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var (
	journalDBPath string
	journalLimit  int
	journalOut    string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunsCmd)
	journalCmd.AddCommand(journalShowCmd)
	journalCmd.AddCommand(journalOrgCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal DB (default from config)")
	journalRunsCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "number of runs to list")
	journalOrgCmd.Flags().StringVarP(&journalOut, "output", "o", "", "output file (default <run-id>.org)")
}

func openSQLiteJournal() (*journal.SQLite, error) {
	path := journalDBPath
	if path == "" {
		path = cfg.Journal.DBPath
	}
	if path == "" {
		return nil, fmt.Errorf("no journal database: set --db or journal.db_path")
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	j, err := openSQLiteJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListBacktestRuns(context.Background(), journalLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tCREATED\tSTRATEGY\tSYMBOL\tTRADES\tWIN%\tNET P/L\tRETURN%")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.2f\t%.2f\t%.2f\n",
			r.RunID, r.Created.Local().Format("2006-01-02 15:04"), r.Strategy, r.Instrument,
			r.Trades, r.WinRate, r.NetPL, r.ReturnPct)
	}
	return w.Flush()
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	j, err := openSQLiteJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	out, err := j.ExportBacktestOrg(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("show run: %w", err)
	}
	fmt.Println(out)
	return nil
}

func runJournalOrg(cmd *cobra.Command, args []string) error {
	j, err := openSQLiteJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	out, err := j.ExportBacktestOrg(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("export run: %w", err)
	}

	path := journalOut
	if path == "" {
		path = args[0] + ".org"
	}
	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		return err
	}
	fmt.Printf("✓ Wrote %s\n", path)
	return nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openSQLiteJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}

	fmt.Println(journal.FormatTradeOrg(rec))
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	j, err := openSQLiteJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	start, end, err := dayBounds(time.Local, args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	recs, err := j.ListTradesClosedBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	fmt.Println(journal.FormatTradesOrg(recs))
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)
	return start, end, nil
}
