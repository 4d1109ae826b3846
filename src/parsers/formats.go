package parsers

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed formats.yaml
var formatsYAML []byte

// ColumnMapping maps canonical fill fields to the header names of one export format.
type ColumnMapping struct {
	RawFillID         string `yaml:"raw_fill_id"`
	RawOrderID        string `yaml:"raw_order_id"`
	RawInstrument     string `yaml:"raw_instrument"`
	RootSymbol        string `yaml:"root_symbol"`
	Side              string `yaml:"side"`
	Quantity          string `yaml:"quantity"`
	Price             string `yaml:"price"`
	FillTime          string `yaml:"fill_time"`
	TradingDay        string `yaml:"trading_day"`
	Commission        string `yaml:"commission"`
	AccountExternalID string `yaml:"account_external_id"`
	Active            string `yaml:"active"`
}

// Format is one named entry of formats.yaml.
type Format struct {
	Name        string        `yaml:"-"`
	Description string        `yaml:"description"`
	Columns     ColumnMapping `yaml:"columns"`
}

type formatFile struct {
	Default string            `yaml:"default"`
	Formats map[string]Format `yaml:"formats"`
}

var (
	formatsOnce   sync.Once
	loadedFormats formatFile
	formatsErr    error
)

func decodeFormats(raw []byte) (formatFile, error) {
	var cfg formatFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return formatFile{}, fmt.Errorf("parse import formats failed: %w", err)
	}
	for name, f := range cfg.Formats {
		if f.Columns.Side == "" || f.Columns.Quantity == "" || f.Columns.Price == "" || f.Columns.FillTime == "" ||
			f.Columns.TradingDay == "" || (f.Columns.RootSymbol == "" && f.Columns.RawInstrument == "") {
			return formatFile{}, fmt.Errorf("import format %q does not map every required field", name)
		}
		f.Name = name
		cfg.Formats[name] = f
	}
	if _, ok := cfg.Formats[cfg.Default]; !ok {
		return formatFile{}, fmt.Errorf("default import format %q is not defined", cfg.Default)
	}
	return cfg, nil
}

func formats() (formatFile, error) {
	formatsOnce.Do(func() {
		loadedFormats, formatsErr = decodeFormats(formatsYAML)
	})
	return loadedFormats, formatsErr
}

// LookupFormat returns the named format, or the default one when name is empty.
func LookupFormat(name string) (Format, error) {
	cfg, err := formats()
	if err != nil {
		return Format{}, err
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = cfg.Default
	}
	f, ok := cfg.Formats[name]
	if !ok {
		return Format{}, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
	return f, nil
}

// FormatNames lists the configured formats in alphabetical order.
func FormatNames() []string {
	cfg, err := formats()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(cfg.Formats))
	for name := range cfg.Formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
