package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/condor_backtest/internal/logging"
	"github.com/eddiefleurent/condor_backtest/internal/models"
	"github.com/eddiefleurent/condor_backtest/internal/retry"
)

const (
	// DefaultAlphaVantageURL is the public API host.
	DefaultAlphaVantageURL = "https://www.alphavantage.co"

	defaultAVTimeout     = 30 * time.Second
	defaultAVRetries     = 3
	defaultAVConcurrency = 2
	userAgent            = "condor-backtest/1.0 (+alphavantage)"

	fallbackBid = 0.01
	fallbackIV  = 0.20
)

var (
	// ErrRateLimited is returned when the vendor reports a call frequency limit.
	ErrRateLimited = errors.New("alpha vantage rate limit exceeded")
	// ErrNoOptionsData is returned when a response carries no usable contracts.
	ErrNoOptionsData = errors.New("no options data returned from alpha vantage")
)

// APIError represents a vendor error, either a non-2xx HTTP status or an
// "Error Message" payload delivered with 200.
type APIError struct {
	Body   string
	Status int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// isPermanentAPIError reports 4xx errors other than 429.
func isPermanentAPIError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests
	}
	return false
}

// AlphaVantageConfig configures the vendor client.
type AlphaVantageConfig struct {
	APIKey         string
	BaseURL        string
	Timeout        time.Duration // per request
	MaxRetries     int
	MaxConcurrency int // tickers fetched in parallel by FetchAll
}

// AlphaVantageClient fetches option chains from the HISTORICAL_OPTIONS
// endpoint and converts them to market snapshots.
type AlphaVantageClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker
	logger      logrus.FieldLogger
	now         func() time.Time
	apiKey      string
	baseURL     string
	retry       retry.Config
	concurrency int
}

// NewAlphaVantageClient creates a client. Zero config values take defaults.
func NewAlphaVantageClient(cfg AlphaVantageConfig, logger logrus.FieldLogger) *AlphaVantageClient {
	logger = logging.OrDiscard(logger)

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAlphaVantageURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAVTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultAVRetries
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultAVConcurrency
	}

	retryCfg := retry.DefaultConfig
	retryCfg.MaxRetries = cfg.MaxRetries

	return &AlphaVantageClient{
		client:      &http.Client{Timeout: cfg.Timeout},
		breaker:     newBreaker("AlphaVantage", logger),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		retry:       retryCfg,
		concurrency: cfg.MaxConcurrency,
	}
}

func newBreaker(name string, logger logrus.FieldLogger) *gobreaker.CircuitBreaker {
	const (
		minRequests  = 5
		failureRatio = 0.6
	)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // allowed while half-open
		Interval:    60 * time.Second, // count reset
		Timeout:     30 * time.Second, // open duration
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= failureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("Circuit breaker state changed")
		},
	})
}

// execCircuitBreaker runs fn through the breaker with a typed result.
func execCircuitBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

type avResponse struct {
	ErrorMessage string     `json:"Error Message"`
	Note         string     `json:"Note"`
	Information  string     `json:"Information"`
	Data         []avOption `json:"data"`
}

type avOption struct {
	ContractID        string `json:"contractID"`
	Symbol            string `json:"symbol"`
	Expiration        string `json:"expiration"`
	Strike            string `json:"strike"`
	Type              string `json:"type"`
	Last              string `json:"last"`
	Mark              string `json:"mark"`
	Bid               string `json:"bid"`
	Ask               string `json:"ask"`
	Volume            string `json:"volume"`
	OpenInterest      string `json:"open_interest"`
	Date              string `json:"date"`
	ImpliedVolatility string `json:"implied_volatility"`
	Delta             string `json:"delta"`
	Gamma             string `json:"gamma"`
	Theta             string `json:"theta"`
	Vega              string `json:"vega"`
	Rho               string `json:"rho"`
}

// FetchOptionsChain fetches the most recent chain for symbol.
func (c *AlphaVantageClient) FetchOptionsChain(ctx context.Context, symbol string) (*models.MarketSnapshot, error) {
	return c.FetchOptionsChainOn(ctx, symbol, time.Time{})
}

// FetchOptionsChainOn fetches the chain for symbol as of date. A zero date
// asks for the most recent trading day.
func (c *AlphaVantageClient) FetchOptionsChainOn(
	ctx context.Context,
	symbol string,
	date time.Time,
) (*models.MarketSnapshot, error) {
	log := c.logger.WithField("symbol", symbol)
	log.Info("Fetching options chain from Alpha Vantage")

	resp, err := retry.Do(ctx, c.retry, log, "options chain request", func(ctx context.Context) (*avResponse, error) {
		return execCircuitBreaker(c.breaker, func() (*avResponse, error) {
			return c.query(ctx, symbol, date)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", symbol, err)
	}

	snapshot, err := c.convert(resp.Data, symbol)
	if err != nil {
		return nil, fmt.Errorf("converting %s: %w", symbol, err)
	}

	contracts := 0
	for _, chain := range snapshot.Chains {
		contracts += len(chain.Calls) + len(chain.Puts)
	}
	log.WithFields(logrus.Fields{
		"contracts":        contracts,
		"expirations":      len(snapshot.Chains),
		"underlying_price": snapshot.UnderlyingPrice,
	}).Info("Fetched options chain")

	return snapshot, nil
}

// FetchAll fetches every ticker concurrently. Tickers that fail are logged
// and skipped; the rest are returned in ticker order.
func (c *AlphaVantageClient) FetchAll(ctx context.Context, tickers []string) ([]models.MarketSnapshot, error) {
	results := make([]*models.MarketSnapshot, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, ticker := range tickers {
		g.Go(func() error {
			snapshot, err := c.FetchOptionsChain(gctx, ticker)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.WithError(err).WithField("symbol", ticker).Warn("Failed to fetch from Alpha Vantage")
				return nil
			}
			results[i] = snapshot
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snapshots := make([]models.MarketSnapshot, 0, len(tickers))
	for _, s := range results {
		if s != nil {
			snapshots = append(snapshots, *s)
		}
	}
	if len(snapshots) == 0 && len(tickers) > 0 {
		return nil, fmt.Errorf("all %d tickers failed: %w", len(tickers), ErrNoOptionsData)
	}
	return snapshots, nil
}

func (c *AlphaVantageClient) query(ctx context.Context, symbol string, date time.Time) (*avResponse, error) {
	params := url.Values{}
	params.Set("function", "HISTORICAL_OPTIONS")
	params.Set("symbol", symbol)
	params.Set("apikey", c.apiKey)
	if !date.IsZero() {
		params.Set("date", date.Format(dateLayout))
	}
	endpoint := c.baseURL + "/query?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Debug("Failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap
		apiErr := &APIError{Status: resp.StatusCode, Body: string(body)}
		if err != nil {
			apiErr.Body = "failed to read error body"
		}
		if isPermanentAPIError(apiErr) {
			return nil, retry.Permanent(apiErr)
		}
		return nil, apiErr
	}

	var out avResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decoding response: %w", err))
	}

	if out.ErrorMessage != "" {
		return nil, retry.Permanent(&APIError{Status: resp.StatusCode, Body: out.ErrorMessage})
	}
	if strings.Contains(out.Note, "API call frequency") ||
		strings.Contains(strings.ToLower(out.Information), "rate limit") {
		return nil, ErrRateLimited
	}
	if len(out.Data) == 0 {
		return nil, retry.Permanent(ErrNoOptionsData)
	}
	return &out, nil
}

// convert groups vendor contracts into chains by expiration. The vendor does
// not report the underlying price, so the mean strike stands in for it.
func (c *AlphaVantageClient) convert(options []avOption, symbol string) (*models.MarketSnapshot, error) {
	now := c.quoteTime(options)

	var strikeSum, ivSum, volume float64
	var strikeCount, ivCount int
	for _, o := range options {
		if strike, ok := parseFloat(o.Strike); ok {
			strikeSum += strike
			strikeCount++
		}
		if iv, ok := parseFloat(o.ImpliedVolatility); ok {
			ivSum += iv
			ivCount++
		}
		if v, ok := parseFloat(o.Volume); ok {
			volume += v
		}
	}
	if strikeCount == 0 {
		return nil, ErrNoOptionsData
	}
	underlyingPrice := strikeSum / float64(strikeCount)
	avgIV := fallbackIV
	if ivCount > 0 {
		avgIV = ivSum / float64(ivCount)
	}

	snapshot := &models.MarketSnapshot{
		Timestamp:         now,
		Symbol:            symbol,
		UnderlyingPrice:   underlyingPrice,
		Volume:            volume,
		ImpliedVolatility: avgIV,
		Chains:            make(map[string]*models.OptionsChain),
	}

	for _, o := range options {
		var optionType models.OptionType
		switch strings.ToLower(o.Type) {
		case "call":
			optionType = models.OptionTypeCall
		case "put":
			optionType = models.OptionTypePut
		default:
			continue
		}

		day, err := time.Parse(dateLayout, o.Expiration)
		if err != nil {
			return nil, fmt.Errorf("invalid expiration %q: %w", o.Expiration, err)
		}
		expiration := day.Add(expirationHour * time.Hour)

		contract, err := convertContract(o, optionType, symbol, expiration, now)
		if err != nil {
			return nil, err
		}

		chain, ok := snapshot.Chains[o.Expiration]
		if !ok {
			chain = models.NewOptionsChain(symbol, expiration, underlyingPrice, now)
			snapshot.Chains[o.Expiration] = chain
		}
		chain.AddContract(contract)
	}

	if len(snapshot.Chains) == 0 {
		return nil, fmt.Errorf("no valid options chains created: %w", ErrNoOptionsData)
	}
	return snapshot, nil
}

// quoteTime is the latest quote date in the payload at the close, or the
// current time when the vendor omits it.
func (c *AlphaVantageClient) quoteTime(options []avOption) time.Time {
	var latest time.Time
	for _, o := range options {
		day, err := time.Parse(dateLayout, o.Date)
		if err != nil {
			continue
		}
		if t := day.Add(expirationHour * time.Hour); t.After(latest) {
			latest = t
		}
	}
	if latest.IsZero() {
		return c.now()
	}
	return latest
}

func convertContract(
	o avOption,
	optionType models.OptionType,
	underlying string,
	expiration, now time.Time,
) (models.OptionsContract, error) {
	strike, ok := parseFloat(o.Strike)
	if !ok {
		return models.OptionsContract{}, fmt.Errorf("invalid strike price %q for %s", o.Strike, o.ContractID)
	}

	bid := floatOr(o.Bid, fallbackBid)
	ask := floatOr(o.Ask, bid+0.01)
	last, ok := parseFloat(o.Last)
	if !ok {
		last = floatOr(o.Mark, (bid+ask)/2)
	}

	dte := int(expiration.Sub(now) / (24 * time.Hour))
	if dte < 0 {
		dte = 0
	}

	return models.OptionsContract{
		Underlying:        underlying,
		Type:              optionType,
		Strike:            strike,
		Expiration:        expiration,
		Timestamp:         now,
		Bid:               bid,
		Ask:               ask,
		LastPrice:         last,
		ImpliedVolatility: floatOr(o.ImpliedVolatility, fallbackIV),
		OpenInterest:      intOr(o.OpenInterest),
		Volume:            intOr(o.Volume),
		DTE:               dte,
		Greeks: models.Greeks{
			Delta: floatOr(o.Delta, 0),
			Gamma: floatOr(o.Gamma, 0),
			Theta: floatOr(o.Theta, 0),
			Vega:  floatOr(o.Vega, 0),
			Rho:   floatOr(o.Rho, 0),
		},
	}, nil
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func floatOr(s string, fallback float64) float64 {
	if v, ok := parseFloat(s); ok {
		return v
	}
	return fallback
}

func intOr(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
