package data

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/eddiefleurent/condor_backtest/internal/models"
)

// QuoteRow is one contract quote in the flat CSV layout. Rows sharing a
// timestamp and symbol form one snapshot; rows sharing an expiration within
// it form one chain.
type QuoteRow struct {
	Timestamp         string  `csv:"timestamp"`  // RFC3339, or YYYY-MM-DD for the close
	Symbol            string  `csv:"symbol"`
	Expiration        string  `csv:"expiration"` // RFC3339, or YYYY-MM-DD for the close
	Type              string  `csv:"type"`       // call | put
	UnderlyingPrice   float64 `csv:"underlying_price"`
	Strike            float64 `csv:"strike"`
	Bid               float64 `csv:"bid"`
	Ask               float64 `csv:"ask"`
	Last              float64 `csv:"last"`
	ImpliedVolatility float64 `csv:"implied_volatility"`
	Volume            int64   `csv:"volume"`
	OpenInterest      int64   `csv:"open_interest"`
	Delta             float64 `csv:"delta"`
	Gamma             float64 `csv:"gamma"`
	Theta             float64 `csv:"theta"`
	Vega              float64 `csv:"vega"`
	Rho               float64 `csv:"rho"`
}

// LoadCSV reads snapshots from a CSV file.
func LoadCSV(path string) ([]models.MarketSnapshot, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from user config
	if err != nil {
		return nil, fmt.Errorf("opening csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	snapshots, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snapshots, nil
}

type snapshotKey struct {
	at     time.Time
	symbol string
}

// ParseCSV reads quote rows and groups them into snapshots ordered by
// timestamp, then symbol.
func ParseCSV(r io.Reader) ([]models.MarketSnapshot, error) {
	var rows []QuoteRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}

	groups := make(map[snapshotKey]*models.MarketSnapshot)
	ivCount := make(map[snapshotKey]int)

	for i, row := range rows {
		line := i + 2 // header is line 1
		at, err := parseQuoteTime(row.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("line %d: timestamp: %w", line, err)
		}
		expiration, err := parseQuoteTime(row.Expiration)
		if err != nil {
			return nil, fmt.Errorf("line %d: expiration: %w", line, err)
		}

		var optionType models.OptionType
		switch strings.ToLower(strings.TrimSpace(row.Type)) {
		case "call", "c":
			optionType = models.OptionTypeCall
		case "put", "p":
			optionType = models.OptionTypePut
		default:
			return nil, fmt.Errorf("line %d: unknown option type %q", line, row.Type)
		}

		key := snapshotKey{at: at, symbol: row.Symbol}
		snapshot, ok := groups[key]
		if !ok {
			snapshot = &models.MarketSnapshot{
				Timestamp:       at,
				Symbol:          row.Symbol,
				UnderlyingPrice: row.UnderlyingPrice,
				Chains:          make(map[string]*models.OptionsChain),
			}
			groups[key] = snapshot
		}

		expKey := expiration.Format(dateLayout)
		chain, ok := snapshot.Chains[expKey]
		if !ok {
			chain = models.NewOptionsChain(row.Symbol, expiration, snapshot.UnderlyingPrice, at)
			snapshot.Chains[expKey] = chain
		}

		last := row.Last
		if last == 0 {
			last = (row.Bid + row.Ask) / 2
		}
		dte := int(expiration.Sub(at) / (24 * time.Hour))
		if dte < 0 {
			dte = 0
		}

		chain.AddContract(models.OptionsContract{
			Underlying:        row.Symbol,
			Type:              optionType,
			Strike:            row.Strike,
			Expiration:        expiration,
			Timestamp:         at,
			Bid:               row.Bid,
			Ask:               row.Ask,
			LastPrice:         last,
			ImpliedVolatility: row.ImpliedVolatility,
			OpenInterest:      row.OpenInterest,
			Volume:            row.Volume,
			DTE:               dte,
			Greeks: models.Greeks{
				Delta: row.Delta,
				Gamma: row.Gamma,
				Theta: row.Theta,
				Vega:  row.Vega,
				Rho:   row.Rho,
			},
		})

		snapshot.Volume += float64(row.Volume)
		if row.ImpliedVolatility > 0 {
			// running mean
			ivCount[key]++
			snapshot.ImpliedVolatility += (row.ImpliedVolatility - snapshot.ImpliedVolatility) / float64(ivCount[key])
		}
	}

	snapshots := make([]models.MarketSnapshot, 0, len(groups))
	for _, s := range groups {
		snapshots = append(snapshots, *s)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if !snapshots[i].Timestamp.Equal(snapshots[j].Timestamp) {
			return snapshots[i].Timestamp.Before(snapshots[j].Timestamp)
		}
		return snapshots[i].Symbol < snapshots[j].Symbol
	})
	return snapshots, nil
}

// WriteCSV writes snapshots in the layout ParseCSV reads. Chains are written
// in expiration order with calls before puts, strikes ascending.
func WriteCSV(w io.Writer, snapshots []models.MarketSnapshot) error {
	var rows []QuoteRow
	for _, s := range snapshots {
		keys := make([]string, 0, len(s.Chains))
		for k, chain := range s.Chains {
			if chain != nil {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		for _, k := range keys {
			chain := s.Chains[k]
			for _, optionType := range []models.OptionType{models.OptionTypeCall, models.OptionTypePut} {
				contracts := chain.Contracts(optionType)
				for _, strike := range chain.Strikes(optionType) {
					c := contracts[strike]
					rows = append(rows, QuoteRow{
						Timestamp:         s.Timestamp.UTC().Format(time.RFC3339),
						Symbol:            s.Symbol,
						Expiration:        chain.Expiration.UTC().Format(time.RFC3339),
						Type:              string(optionType),
						UnderlyingPrice:   s.UnderlyingPrice,
						Strike:            c.Strike,
						Bid:               c.Bid,
						Ask:               c.Ask,
						Last:              c.LastPrice,
						ImpliedVolatility: c.ImpliedVolatility,
						Volume:            c.Volume,
						OpenInterest:      c.OpenInterest,
						Delta:             c.Greeks.Delta,
						Gamma:             c.Greeks.Gamma,
						Theta:             c.Greeks.Theta,
						Vega:              c.Greeks.Vega,
						Rho:               c.Greeks.Rho,
					})
				}
			}
		}
	}

	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}

func parseQuoteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	day, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor YYYY-MM-DD", s)
	}
	return day.Add(expirationHour * time.Hour), nil
}
