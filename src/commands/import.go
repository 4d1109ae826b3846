package commands

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/subcommands"
	"github.com/username/tradejournal/backend/src/config"
	"github.com/username/tradejournal/backend/src/services"
)

type importCmd struct {
	user   string
	format string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import broker fill exports from CSV files" }
func (*importCmd) Usage() string {
	return `import -u <user> [-format <format>] <file.csv>...

  Runs each file through the import pipeline and prints its result as JSON.
  Files are imported one after the other, each in its own batch.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "u", "", "User id or username owning the fills")
	f.StringVar(&c.format, "format", "", "Column mapping to use (defaults to IMPORT_FORMAT)")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one file is required")
		return subcommands.ExitUsageError
	}
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

	status := subcommands.ExitSuccess
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, path := range f.Args() {
		result, err := c.importFile(ctx, a, path, user.ID)
		if result != nil {
			enc.Encode(result)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
			status = subcommands.ExitFailure
			if !errors.Is(err, services.ErrProcessingFailed) {
				return status
			}
		}
	}
	return status
}

func (c *importCmd) importFile(ctx context.Context, a *app, path string, userID int64) (*services.ImportResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return a.imports.Import(ctx, file, filepath.Base(path), c.format, userID)
}
