package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/models"
	"github.com/username/tradejournal/backend/src/security/validation"
)

// fillTimeLayouts are tried in order. Layouts without a zone are read as UTC.
var fillTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Quantities are plain decimal numbers; exponent and hex forms are rejected.
var quantityRegex = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?$`)

// ParseFillTime accepts ISO-8601 with a "T" or a space separator and returns the instant in UTC.
func ParseFillTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range fillTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// columnIndex holds the header position of each mapped field, -1 when absent.
type columnIndex struct {
	rawFillID, rawOrderID, rawInstrument, rootSymbol, side, quantity, price int
	fillTime, tradingDay, commission, account, active                       int
}

// CSVNormalizer reads a delimited export through a static column mapping.
type CSVNormalizer struct {
	format Format
}

func NewCSVNormalizer(format Format) *CSVNormalizer {
	return &CSVNormalizer{format: format}
}

func (n *CSVNormalizer) Format() string {
	return n.format.Name
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

func (n *CSVNormalizer) indexHeader(header []string) (columnIndex, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := positions[key]; !dup && key != "" {
			positions[key] = i
		}
	}
	find := func(name string) int {
		if name == "" {
			return -1
		}
		if i, ok := positions[normalizeHeader(name)]; ok {
			return i
		}
		return -1
	}

	c := n.format.Columns
	idx := columnIndex{
		rawFillID:     find(c.RawFillID),
		rawOrderID:    find(c.RawOrderID),
		rawInstrument: find(c.RawInstrument),
		rootSymbol:    find(c.RootSymbol),
		side:          find(c.Side),
		quantity:      find(c.Quantity),
		price:         find(c.Price),
		fillTime:      find(c.FillTime),
		tradingDay:    find(c.TradingDay),
		commission:    find(c.Commission),
		account:       find(c.AccountExternalID),
		active:        find(c.Active),
	}

	var missing []string
	if idx.rootSymbol < 0 && idx.rawInstrument < 0 {
		missing = append(missing, "symbol")
	}
	for _, req := range []struct {
		pos  int
		name string
	}{{idx.side, c.Side}, {idx.quantity, c.Quantity}, {idx.price, c.Price}, {idx.fillTime, c.FillTime}, {idx.tradingDay, c.TradingDay}} {
		if req.pos < 0 {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return idx, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return idx, nil
}

// Parse reads every data row. Row numbers in errors are physical line numbers, the header being line 1.
func (n *CSVNormalizer) Parse(file io.Reader, userID int64) (*models.NormalizeResult, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields per record

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("%s parser: failed to read CSV header: %w", n.format.Name, err)
	}
	idx, err := n.indexHeader(header)
	if err != nil {
		return nil, fmt.Errorf("%s parser: %w", n.format.Name, err)
	}

	result := &models.NormalizeResult{Fills: []models.Fill{}, Errors: []models.RowError{}}
	inactive := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.TotalRows++
				result.Errors = append(result.Errors, models.RowError{Row: parseErr.StartLine, Message: "malformed CSV record: " + parseErr.Err.Error()})
				continue
			}
			return nil, fmt.Errorf("%s parser: failed to read CSV record: %w", n.format.Name, err)
		}
		result.TotalRows++
		line, _ := reader.FieldPos(0)

		get := func(pos int) string {
			if pos < 0 || pos >= len(record) {
				return ""
			}
			return validation.CleanField(record[pos])
		}

		if idx.active >= 0 && get(idx.active) != "true" {
			inactive++
			continue
		}

		fill, problems := buildFill(idx, get)
		if len(problems) > 0 {
			result.Errors = append(result.Errors, models.RowError{Row: line, Message: strings.Join(problems, "; ")})
			continue
		}
		fill.UserID = userID
		fill.Row = line
		result.Fills = append(result.Fills, fill)
	}

	logger.L.Debug("Normalized import file", "format", n.format.Name, "userID", userID,
		"rows", result.TotalRows, "fills", len(result.Fills), "errors", len(result.Errors), "inactive", inactive)
	return result, nil
}

// buildFill validates one row. It returns every problem found so that a row yields a single error entry.
func buildFill(idx columnIndex, get func(int) string) (models.Fill, []string) {
	var fill models.Fill
	var problems []string

	rawInstrument := get(idx.rawInstrument)
	root := strings.ToUpper(get(idx.rootSymbol))
	if root == "" && rawInstrument != "" {
		root = DeriveRootSymbol(rawInstrument)
	}
	sideStr, qtyStr, priceStr, timeStr, day := get(idx.side), get(idx.quantity), get(idx.price), get(idx.fillTime), get(idx.tradingDay)

	var missing []string
	for _, f := range []struct{ value, name string }{
		{root, "symbol"}, {sideStr, "side"}, {qtyStr, "quantity"}, {priceStr, "price"}, {timeStr, "timestamp"}, {day, "trading day"},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fill, []string{"missing required field(s): " + strings.Join(missing, ", ")}
	}

	switch side := models.Side(strings.ToUpper(sideStr)); side {
	case models.SideBuy, models.SideSell:
		fill.Side = side
	default:
		problems = append(problems, fmt.Sprintf("invalid side %q: expected BUY or SELL", sideStr))
	}

	qty, err := decimal.NewFromString(qtyStr)
	switch {
	case err != nil || !quantityRegex.MatchString(qtyStr):
		problems = append(problems, fmt.Sprintf("invalid quantity %q", qtyStr))
	case !qty.IsInteger() || !qty.IsPositive():
		problems = append(problems, fmt.Sprintf("quantity %q must be a positive integer", qtyStr))
	case qty.GreaterThan(decimal.NewFromInt(1_000_000_000)):
		problems = append(problems, fmt.Sprintf("quantity %q is out of range", qtyStr))
	default:
		fill.Quantity = qty.IntPart()
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		problems = append(problems, fmt.Sprintf("invalid price %q", priceStr))
	} else {
		fill.Price = price
	}

	if fill.FillTime, err = ParseFillTime(timeStr); err != nil {
		problems = append(problems, err.Error())
	}

	if err := validation.ValidateTradingDay(day); err != nil {
		problems = append(problems, fmt.Sprintf("invalid trading day %q: expected YYYY-MM-DD", day))
	}
	fill.TradingDay = day

	fill.RawFillID = get(idx.rawFillID)
	fill.RawOrderID = get(idx.rawOrderID)
	fill.AccountExternalID = get(idx.account)
	fill.RootSymbol = root
	fill.RawInstrument = rawInstrument
	if fill.RawInstrument == "" {
		fill.RawInstrument = root
	}
	for _, f := range []struct {
		value, name string
		limit       int
	}{
		{fill.RawFillID, "fill id", validation.MaxIdentifierLength},
		{fill.RawOrderID, "order id", validation.MaxIdentifierLength},
		{fill.AccountExternalID, "account", validation.MaxIdentifierLength},
		{fill.RawInstrument, "instrument", validation.MaxIdentifierLength},
		{fill.RootSymbol, "symbol", validation.MaxSymbolLength},
	} {
		if err := validation.ValidateStringMaxLength(f.value, f.limit, f.name); err != nil {
			problems = append(problems, fmt.Sprintf("%s exceeds %d characters", f.name, f.limit))
		}
	}

	// Optional; a blank or non-numeric commission counts as zero.
	fill.Commission = decimal.Zero
	if c, err := decimal.NewFromString(get(idx.commission)); err == nil {
		fill.Commission = c.Abs()
	}

	return fill, problems
}
