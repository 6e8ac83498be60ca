package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/synapse"
)

// RateSource supplies the latest market rates.
type RateSource interface {
	Latest() (Rates, error)
}

var _ RateSource = (*Market)(nil)

// Desk holds the collaborators shared by the desk tools.
type Desk struct {
	rates    RateSource
	store    synapse.TradeStore
	audit    synapse.AuditLog
	speech   synapse.TextToSpeech
	audioDir string
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	lastTx int64
}

// Option configures a Desk.
type Option func(*Desk)

// WithAuditLog records a trade_booked event for every booking.
func WithAuditLog(a synapse.AuditLog) Option {
	return func(d *Desk) { d.audit = a }
}

// WithSpeech enables the spoken booking confirmation, written to dir.
func WithSpeech(tts synapse.TextToSpeech, dir string) Option {
	return func(d *Desk) {
		d.speech = tts
		d.audioDir = dir
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Desk) { d.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Desk) { d.logger = l }
}

// NewDesk returns a Desk pricing from rates and booking into store.
func NewDesk(rates RateSource, store synapse.TradeStore, opts ...Option) *Desk {
	d := &Desk{
		rates:  rates,
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// nextTxID returns TXN-<unix seconds>, bumped past the last issued id so
// two bookings in the same second stay distinct.
func (d *Desk) nextTxID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ts := d.now().Unix()
	if ts <= d.lastTx {
		ts = d.lastTx + 1
	}
	d.lastTx = ts
	return fmt.Sprintf("TXN-%d", ts)
}

func normalizePair(p string) string {
	p = strings.ToUpper(strings.NewReplacer("/", "", "-", "", " ", "").Replace(p))
	if p == "GBPUSD" {
		return PairUSDGBP
	}
	return p
}

func decode(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

// Quote is the price-forward result.
type Quote struct {
	Status        string  `json:"status"`
	Message       string  `json:"message,omitempty"`
	CcyPair       string  `json:"ccy_pair"`
	Tenor         string  `json:"tenor"`
	NotionalUSD   float64 `json:"notional_usd,omitempty"`
	AllInPrice    float64 `json:"all_in_price,omitempty"`
	ForwardPoints float64 `json:"forward_points,omitempty"`
	SpotRate      float64 `json:"spot_rate,omitempty"`
	USDRate3M     float64 `json:"usd_rate_3m,omitempty"`
	GBPRate3M     float64 `json:"gbp_rate_3m,omitempty"`
	Commentary    string  `json:"commentary,omitempty"`
}

// PriceForward quotes the all-in forward and records the market snapshot
// used. A failure to record the snapshot is logged and does not fail the
// quote.
func (d *Desk) PriceForward(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		CcyPair     string  `json:"ccy_pair"`
		NotionalUSD float64 `json:"notional_usd"`
		Tenor       string  `json:"tenor"`
	}
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	pair := normalizePair(in.CcyPair)
	tenor := strings.ToUpper(in.Tenor)
	if tenor == "" {
		tenor = Tenor3M
	}
	q := Quote{CcyPair: pair, Tenor: tenor, NotionalUSD: in.NotionalUSD}
	if pair != PairUSDGBP {
		q.Status = "failure"
		q.Message = fmt.Sprintf("Only USDGBP forwards are quoted, got %s.", in.CcyPair)
		return q, nil
	}
	if tenor != Tenor3M {
		q.Status = "failure"
		q.Message = fmt.Sprintf("Only the 3M tenor is quoted, got %s.", tenor)
		return q, nil
	}

	rates, err := d.rates.Latest()
	if err != nil {
		return nil, fmt.Errorf("load market data: %w", err)
	}
	allIn, points := Forward(SpotUSDGBP, rates.USD3M, rates.GBP3M, TenorDays)
	q.Status = "success"
	q.AllInPrice = allIn
	q.ForwardPoints = points
	q.SpotRate = SpotUSDGBP
	q.USDRate3M = rates.USD3M
	q.GBPRate3M = rates.GBP3M
	q.Commentary = commentary(deskAxe(pair))

	snap := synapse.MarketSnapshot{
		Timestamp: d.now().UTC(),
		Pair:      pair,
		Spot:      SpotUSDGBP,
		USD3M:     rates.USD3M,
		GBP3M:     rates.GBP3M,
	}
	if err := d.store.RecordSnapshot(ctx, snap); err != nil {
		d.logger.Warn("record market snapshot", slog.String("error", err.Error()))
	}
	return q, nil
}

func commentary(a Axe) string {
	if a.Direction == "NEUTRAL" {
		return "Desk has no axe in this pair."
	}
	return fmt.Sprintf("Desk axe: %s %s, %s intensity.", a.Direction, a.Currency, a.Intensity)
}

// Check is the result of a limit or risk check.
type Check struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	ClientID    string  `json:"client_id,omitempty"`
	Limit       float64 `json:"limit,omitempty"`
	KYCStatus   string  `json:"kyc_status,omitempty"`
	MaxNotional float64 `json:"max_notional,omitempty"`
}

// CheckLimits compares a notional against the client's credit limit.
func (d *Desk) CheckLimits(_ context.Context, args json.RawMessage) (any, error) {
	var in struct {
		ClientID    string  `json:"client_id"`
		NotionalUSD float64 `json:"notional_usd"`
	}
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	return checkLimits(in.ClientID, in.NotionalUSD), nil
}

func checkLimits(clientID string, notional float64) Check {
	c, ok := clients[clientID]
	if !ok {
		return Check{
			Status:    "failure",
			Message:   fmt.Sprintf("Client '%s' not found.", clientID),
			ClientID:  clientID,
			KYCStatus: "unknown",
		}
	}
	out := Check{ClientID: clientID, Limit: c.limit, KYCStatus: c.kyc}
	if notional > c.limit {
		out.Status = "failure"
		out.Message = fmt.Sprintf("Notional of %s exceeds limit of %s for %s.", amount(notional), amount(c.limit), clientID)
		return out
	}
	out.Status = "success"
	out.Message = fmt.Sprintf("Trade within limits for %s.", clientID)
	return out
}

// TradingRisk compares a notional against the desk's maximum trade size.
func (d *Desk) TradingRisk(_ context.Context, args json.RawMessage) (any, error) {
	var in struct {
		NotionalUSD float64 `json:"notional_usd"`
	}
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	out := Check{MaxNotional: MaxNotional}
	if in.NotionalUSD > MaxNotional {
		out.Status = "failure"
		out.Message = fmt.Sprintf("Trade size of %s exceeds the desk's max trade limit of %s.", amount(in.NotionalUSD), amount(MaxNotional))
		return out, nil
	}
	out.Status = "success"
	out.Message = "Trade is within desk risk limits."
	return out, nil
}

// DeskAxe reports the desk's axe in a pair.
func (d *Desk) DeskAxe(_ context.Context, args json.RawMessage) (any, error) {
	var in struct {
		CcyPair string `json:"ccy_pair"`
	}
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	return map[string]any{"status": "success", "axe": deskAxe(normalizePair(in.CcyPair))}, nil
}

// ClientInfo returns a client's profile, or the unknown profile.
func (d *Desk) ClientInfo(_ context.Context, args json.RawMessage) (any, error) {
	var in struct {
		ClientID string `json:"client_id"`
	}
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	profile := unknownProfile
	if c, ok := clients[in.ClientID]; ok {
		profile = c.profile
	}
	return map[string]any{"status": "success", "client_id": in.ClientID, "profile": profile}, nil
}

// Booking is the record-audit result.
type Booking struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Notification  string `json:"notification,omitempty"`
}

// RecordAudit books a trade. The spoken confirmation is best effort.
func (d *Desk) RecordAudit(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Trade struct {
			ClientID    string  `json:"client_id"`
			NotionalUSD float64 `json:"notional_usd"`
			Price       float64 `json:"price"`
			CcyPair     string  `json:"ccy_pair"`
			Tenor       string  `json:"tenor"`
			Side        string  `json:"side"`
			FwdPoints   float64 `json:"fwd_points"`
		} `json:"trade_json"`
	}
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	t := in.Trade
	var missing []string
	if t.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if t.NotionalUSD <= 0 {
		missing = append(missing, "notional_usd")
	}
	if t.Price <= 0 {
		missing = append(missing, "price")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("trade_json is missing %s: %w", strings.Join(missing, ", "), synapse.ErrValidation)
	}
	tenor := strings.ToUpper(t.Tenor)
	if tenor == "" {
		tenor = Tenor3M
	}
	pair := normalizePair(t.CcyPair)
	if pair == "" {
		pair = PairUSDGBP
	}

	trade := synapse.Trade{
		TxID:        d.nextTxID(),
		ClientID:    t.ClientID,
		CcyPair:     pair,
		NotionalUSD: t.NotionalUSD,
		Tenor:       tenor,
		FwdPoints:   t.FwdPoints,
		Price:       t.Price,
		Side:        strings.ToUpper(t.Side),
		BookedAt:    d.now().UTC(),
	}
	if err := d.store.RecordTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("record trade: %w", err)
	}
	d.logger.Info("trade booked",
		slog.String("tx_id", trade.TxID),
		slog.String("client_id", trade.ClientID),
		slog.Float64("notional_usd", trade.NotionalUSD))

	if d.audit != nil {
		payload, _ := json.Marshal(trade)
		if err := d.audit.RecordEvent(ctx, synapse.AuditEvent{
			Timestamp: trade.BookedAt,
			EventType: "trade_booked",
			Payload:   payload,
		}); err != nil {
			d.logger.Warn("record audit event", slog.String("error", err.Error()))
		}
	}

	out := Booking{Status: "success", TransactionID: trade.TxID}
	if path, err := d.notify(ctx, trade.TxID); err != nil {
		d.logger.Warn("booking notification", slog.String("tx_id", trade.TxID), slog.String("error", err.Error()))
	} else {
		out.Notification = path
	}
	return out, nil
}

func (d *Desk) notify(ctx context.Context, txID string) (string, error) {
	if d.speech == nil {
		return "", nil
	}
	audio, err := d.speech.TextToSpeech(ctx, fmt.Sprintf("Trade booked successfully. Transaction ID %s.", txID))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.audioDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(d.audioDir, txID+".mp3")
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
