package commands

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"github.com/username/tradejournal/backend/src/config"
	"github.com/username/tradejournal/backend/src/models"
)

type reportCmd struct {
	user     string
	account  string
	currency string
	plain    bool
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "display the daily P&L journal of an account" }
func (*reportCmd) Usage() string {
	return `report -u <user> [-a <account>] [-currency USD] [-plain]

  Renders one table of daily summaries per account, oldest day first.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "u", "", "User id or username")
	f.StringVar(&c.account, "a", "", "External account identifier (defaults to every account)")
	f.StringVar(&c.currency, "currency", money.USD, "Currency code used to display amounts")
	f.BoolVar(&c.plain, "plain", false, "Print raw markdown instead of rendering it")
}

func (c *reportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(config.Current())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	user, err := a.lookupUser(ctx, c.user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: user %q: %v\n", c.user, err)
		return subcommands.ExitUsageError
	}
	accounts, err := a.accountsFor(ctx, user.ID, c.account)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	var md strings.Builder
	for _, account := range accounts {
		summaries, err := a.journal.ListDailySummaries(ctx, user.ID, account.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: account %s: %v\n", account.ExternalID, err)
			return subcommands.ExitFailure
		}
		md.WriteString(DailyReportMarkdown(account, summaries, c.currency))
	}
	if md.Len() == 0 {
		md.WriteString("_No accounts imported yet._\n")
	}

	if c.plain {
		fmt.Print(md.String())
	} else {
		printMarkdown(md.String())
	}
	return subcommands.ExitSuccess
}

// DailyReportMarkdown renders the summaries of one account as a markdown table.
func DailyReportMarkdown(account models.Account, summaries []models.DailySummary, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s (%s)\n\n", account.DisplayName, account.Broker)
	if len(summaries) == 0 {
		b.WriteString("_No closed trades._\n\n")
		return b.String()
	}

	b.WriteString("| Day | Trades | W / L / BE | Win rate | Profit factor | Net P&L | Commission | Cumulative |\n")
	b.WriteString("|:---|---:|:---:|---:|---:|---:|---:|---:|\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "| %s | %d | %d / %d / %d | %s | %s | %s | %s | %s |\n",
			s.TradingDay, s.TotalTrades, s.WinCount, s.LossCount, s.BreakevenCount,
			percent(s.WinRate), ratio(s.ProfitFactor),
			formatMoney(s.NetPnL, currency), formatMoney(s.CommissionTotal, currency),
			formatMoney(s.CumulativePnL, currency))
	}
	last := summaries[len(summaries)-1]
	fmt.Fprintf(&b, "\n**Cumulative P&L:** %s over %d trading days\n\n", formatMoney(last.CumulativePnL, currency), len(summaries))
	return b.String()
}

// formatMoney displays an amount with the currency's symbol and minor-unit precision.
func formatMoney(amount decimal.Decimal, code string) string {
	cur := *money.New(0, code).Currency()
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

func percent(v decimal.NullDecimal) string {
	if !v.Valid {
		return "-"
	}
	return v.Decimal.StringFixed(2) + "%"
}

func ratio(v decimal.NullDecimal) string {
	if !v.Valid {
		return "-"
	}
	return v.Decimal.StringFixed(2)
}

func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(140))
	if err != nil {
		fmt.Print(md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}
