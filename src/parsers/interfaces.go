package parsers

import (
	"errors"
	"io"

	"github.com/username/tradejournal/backend/src/models"
)

var (
	ErrUnknownFormat  = errors.New("no parser available for format")
	ErrMissingColumns = errors.New("required columns missing from header")
	ErrEmptyFile      = errors.New("file has no header row")
)

// Parser turns one export file into fill candidates for a user. Bad rows are reported
// in the result; an error is returned only when the file as a whole cannot be read.
type Parser interface {
	Format() string
	Parse(file io.Reader, userID int64) (*models.NormalizeResult, error)
}

// GetParser returns the parser for a configured format; "" selects the default format.
func GetParser(format string) (Parser, error) {
	f, err := LookupFormat(format)
	if err != nil {
		return nil, err
	}
	return NewCSVNormalizer(f), nil
}
