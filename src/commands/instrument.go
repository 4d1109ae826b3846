package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"github.com/username/tradejournal/backend/src/config"
	"github.com/username/tradejournal/backend/src/model"
	"github.com/username/tradejournal/backend/src/models"
)

type instrumentCmd struct {
	user       string
	symbol     string
	tickSize   string
	tickValue  string
	commission string
	plain      bool
}

func (*instrumentCmd) Name() string     { return "instrument" }
func (*instrumentCmd) Synopsis() string { return "list instruments or set their contract economics" }
func (*instrumentCmd) Usage() string {
	return `instrument -u <user> [-plain]
instrument -u <user> -symbol <root> -tick-size <d> -tick-value <d> [-commission <d>]

  Without -symbol, lists the user's instruments; those created from an unknown
  root symbol are flagged for configuration. With -symbol, stores the tick size,
  tick value and per-side commission used by later imports. Trades already
  reconstructed keep the economics they were built with.
`
}

func (c *instrumentCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "u", "", "User id or username")
	f.StringVar(&c.symbol, "symbol", "", "Root symbol to configure (e.g. MES)")
	f.StringVar(&c.tickSize, "tick-size", "", "Minimum price increment")
	f.StringVar(&c.tickValue, "tick-value", "", "Currency value of one tick per contract")
	f.StringVar(&c.commission, "commission", "", "Commission per side per contract (keeps the current value when empty)")
	f.BoolVar(&c.plain, "plain", false, "Print raw markdown instead of rendering it")
}

func (c *instrumentCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	if c.symbol == "" {
		instruments, err := model.ListInstruments(ctx, a.db, user.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		md := InstrumentsMarkdown(instruments)
		if c.plain {
			fmt.Print(md)
		} else {
			printMarkdown(md)
		}
		return subcommands.ExitSuccess
	}

	econ, err := parseEconomics(c.tickSize, c.tickValue, c.commission)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	in, err := a.configureInstrument(ctx, user.ID, c.symbol, econ)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%s: tick %s = %s, multiplier %s, commission %s per side\n",
		in.RootSymbol, in.TickSize, in.TickValue, in.Multiplier, in.CommissionPerSide)
	return subcommands.ExitSuccess
}

// economics holds user-supplied contract values. A nil commission keeps the stored one.
type economics struct {
	tickSize   decimal.Decimal
	tickValue  decimal.Decimal
	commission *decimal.Decimal
}

func parseEconomics(tickSize, tickValue, commission string) (economics, error) {
	var e economics
	var err error
	if e.tickSize, err = decimal.NewFromString(tickSize); err != nil || !e.tickSize.IsPositive() {
		return e, fmt.Errorf("-tick-size must be a positive decimal, got %q", tickSize)
	}
	if e.tickValue, err = decimal.NewFromString(tickValue); err != nil || !e.tickValue.IsPositive() {
		return e, fmt.Errorf("-tick-value must be a positive decimal, got %q", tickValue)
	}
	if commission != "" {
		fee, err := decimal.NewFromString(commission)
		if err != nil || fee.IsNegative() {
			return e, fmt.Errorf("-commission must be a non-negative decimal, got %q", commission)
		}
		e.commission = &fee
	}
	return e, nil
}

func (a *app) configureInstrument(ctx context.Context, userID int64, symbol string, e economics) (*models.Instrument, error) {
	root := strings.ToUpper(strings.TrimSpace(symbol))
	in, err := model.GetInstrumentBySymbol(ctx, a.db, userID, root)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("instrument %s has not been imported yet", root)
	}
	if err != nil {
		return nil, err
	}
	commission := in.CommissionPerSide
	if e.commission != nil {
		commission = *e.commission
	}
	if err := model.UpdateInstrumentEconomics(ctx, a.db, userID, in.ID, e.tickSize, e.tickValue, commission); err != nil {
		return nil, err
	}
	return model.GetInstrument(ctx, a.db, userID, in.ID)
}

// InstrumentsMarkdown renders the instrument list as a markdown table.
func InstrumentsMarkdown(instruments []models.Instrument) string {
	var b strings.Builder
	b.WriteString("# Instruments\n\n")
	if len(instruments) == 0 {
		b.WriteString("_No instruments imported yet._\n")
		return b.String()
	}
	b.WriteString("| Symbol | Name | Tick size | Tick value | Multiplier | Commission / side | Status |\n")
	b.WriteString("|:---|:---|---:|---:|---:|---:|:---|\n")
	for _, in := range instruments {
		status := "ok"
		if in.NeedsConfig {
			status = "needs config"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			in.RootSymbol, in.DisplayName, in.TickSize, in.TickValue, in.Multiplier, in.CommissionPerSide, status)
	}
	return b.String()
}
