package fx

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Rates are the 3M deposit rates of the latest market-data date.
type Rates struct {
	Date  string
	USD3M float64
	GBP3M float64
}

// Market loads rates from swap-rate CSV files matching a glob pattern.
// Files are read on every call so a refreshed file is picked up without
// a restart.
type Market struct {
	pattern string
}

// NewMarket returns a Market reading files that match pattern, for example
// "data/**/*.csv".
func NewMarket(pattern string) *Market {
	return &Market{pattern: pattern}
}

type rateRow struct {
	date     string
	currency string
	rate     float64
}

// Latest returns the USD and GBP rates of the most recent date found
// across all matching files.
func (m *Market) Latest() (Rates, error) {
	files, err := doublestar.FilepathGlob(m.pattern)
	if err != nil {
		return Rates{}, fmt.Errorf("market data pattern %q: %w", m.pattern, err)
	}
	if len(files) == 0 {
		return Rates{}, fmt.Errorf("no market data files match %q", m.pattern)
	}

	var rows []rateRow
	for _, f := range files {
		rs, err := readRates(f)
		if err != nil {
			return Rates{}, err
		}
		rows = append(rows, rs...)
	}
	return latest(rows)
}

func readRates(path string) ([]rateRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open market data: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", path, err)
	}
	idx := map[string]int{"date": -1, "currency": -1, "rate": -1}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, ok := idx[key]; ok {
			idx[key] = i
		}
	}
	for k, v := range idx {
		if v < 0 {
			return nil, fmt.Errorf("%s: missing %q column", path, k)
		}
	}

	var rows []rateRow
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(rec[idx["rate"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: invalid rate: %w", path, line, err)
		}
		rows = append(rows, rateRow{
			date:     strings.TrimSpace(rec[idx["date"]]),
			currency: strings.ToUpper(strings.TrimSpace(rec[idx["currency"]])),
			rate:     rate,
		})
	}
	return rows, nil
}

// latest picks the max date (ISO dates sort lexically) and the first USD
// and GBP rows on it.
func latest(rows []rateRow) (Rates, error) {
	var date string
	for _, r := range rows {
		if r.date > date {
			date = r.date
		}
	}
	if date == "" {
		return Rates{}, errors.New("market data is empty")
	}
	out := Rates{Date: date}
	var haveUSD, haveGBP bool
	for _, r := range rows {
		if r.date != date {
			continue
		}
		switch {
		case r.currency == "USD" && !haveUSD:
			out.USD3M, haveUSD = r.rate, true
		case r.currency == "GBP" && !haveGBP:
			out.GBP3M, haveGBP = r.rate, true
		}
	}
	if !haveUSD || !haveGBP {
		return Rates{}, fmt.Errorf("market data for %s lacks a USD or GBP rate", date)
	}
	return out, nil
}
