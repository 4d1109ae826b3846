package commands

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/username/tradejournal/backend/src/config"
	"github.com/username/tradejournal/backend/src/model"
)

type recomputeCmd struct {
	user    string
	account string
}

func (*recomputeCmd) Name() string     { return "recompute" }
func (*recomputeCmd) Synopsis() string { return "rebuild daily summaries from the earliest trading day" }
func (*recomputeCmd) Usage() string {
	return `recompute -u <user> [-a <account>]

  Rebuilds every daily summary and the cumulative P&L chain of one account,
  or of all the user's accounts when -a is omitted.
`
}

func (c *recomputeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "u", "", "User id or username")
	f.StringVar(&c.account, "a", "", "External account identifier")
}

func (c *recomputeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
	for _, account := range accounts {
		days, err := a.aggregates.RecomputeAll(ctx, user.ID, account.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: account %s: %v\n", account.ExternalID, err)
			return subcommands.ExitFailure
		}
		fmt.Printf("%s: %d trading days recomputed\n", account.ExternalID, days)
	}
	a.journal.InvalidateUserCache(user.ID)
	return subcommands.ExitSuccess
}

type sweepCmd struct {
	age time.Duration
}

func (*sweepCmd) Name() string     { return "sweep" }
func (*sweepCmd) Synopsis() string { return "fail import batches abandoned in processing" }
func (*sweepCmd) Usage() string {
	return `sweep [-age <duration>]

  Marks batches still processing after -age (defaults to STALE_BATCH_AGE) as failed.
`
}

func (c *sweepCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.age, "age", 0, "Age after which a processing batch is abandoned")
}

func (c *sweepCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := config.Current()
	age := cfg.StaleBatchAge
	if c.age > 0 {
		age = c.age
	}
	a, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	swept, err := a.imports.SweepStaleBatches(ctx, age)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%d stale batches marked failed\n", swept)
	return subcommands.ExitSuccess
}

type addUserCmd struct{}

func (*addUserCmd) Name() string     { return "adduser" }
func (*addUserCmd) Synopsis() string { return "provision a journal user" }
func (*addUserCmd) Usage() string {
	return `adduser <username>

  Creates the user imports are attributed to and prints its id.
`
}

func (*addUserCmd) SetFlags(*flag.FlagSet) {}

func (*addUserCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one username is required")
		return subcommands.ExitUsageError
	}
	a, err := newApp(config.Current())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	user, err := model.CreateUser(ctx, a.db, f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("user %q created with id %d\n", user.Username, user.ID)
	return subcommands.ExitSuccess
}
