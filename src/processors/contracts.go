package processors

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/tradejournal/backend/src/models"
)

func contract(name, tickSize, tickValue, commission string, micro bool) models.ContractSpec {
	return models.ContractSpec{
		DisplayName:       name,
		TickSize:          decimal.RequireFromString(tickSize),
		TickValue:         decimal.RequireFromString(tickValue),
		CommissionPerSide: decimal.RequireFromString(commission),
		IsMicro:           micro,
	}
}

// knownContracts holds CME economics for the roots new instruments are created from.
var knownContracts = map[string]models.ContractSpec{
	// Equity index
	"ES":  contract("E-mini S&P 500", "0.25", "12.50", "1.29", false),
	"MES": contract("Micro E-mini S&P 500", "0.25", "1.25", "0.35", true),
	"NQ":  contract("E-mini Nasdaq-100", "0.25", "5.00", "1.29", false),
	"MNQ": contract("Micro E-mini Nasdaq-100", "0.25", "0.50", "0.35", true),
	"YM":  contract("E-mini Dow", "1", "5.00", "1.29", false),
	"MYM": contract("Micro E-mini Dow", "1", "0.50", "0.35", true),
	"RTY": contract("E-mini Russell 2000", "0.1", "5.00", "1.29", false),
	"M2K": contract("Micro E-mini Russell 2000", "0.1", "0.50", "0.35", true),

	// Energy
	"CL":  contract("Crude Oil", "0.01", "10.00", "1.50", false),
	"MCL": contract("Micro WTI Crude Oil", "0.01", "1.00", "0.50", true),
	"NG":  contract("Henry Hub Natural Gas", "0.001", "10.00", "1.50", false),

	// Metals
	"GC":  contract("Gold", "0.1", "10.00", "1.50", false),
	"MGC": contract("Micro Gold", "0.1", "1.00", "0.50", true),
	"SI":  contract("Silver", "0.005", "25.00", "1.50", false),
	"SIL": contract("Micro Silver", "0.005", "5.00", "0.50", true),
	"HG":  contract("Copper", "0.0005", "12.50", "1.50", false),

	// Rates
	"ZB": contract("30-Year T-Bond", "0.03125", "31.25", "1.00", false),
	"ZN": contract("10-Year T-Note", "0.015625", "15.625", "1.00", false),

	// FX
	"6E":  contract("Euro FX", "0.00005", "6.25", "1.60", false),
	"M6E": contract("Micro EUR/USD", "0.0001", "1.25", "0.35", true),
}

// LookupContract returns the built-in economics for a root symbol.
func LookupContract(rootSymbol string) (models.ContractSpec, bool) {
	spec, ok := knownContracts[strings.ToUpper(strings.TrimSpace(rootSymbol))]
	return spec, ok
}

// UnknownContract is the neutral spec given to roots missing from the table:
// zero tick economics, multiplier 1.
func UnknownContract(rootSymbol string) models.ContractSpec {
	return models.ContractSpec{
		DisplayName:       rootSymbol,
		TickSize:          decimal.Zero,
		TickValue:         decimal.Zero,
		CommissionPerSide: decimal.Zero,
	}
}
