package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// DefaultPumpPortalURL is the hosted trade endpoint.
const DefaultPumpPortalURL = "https://pumpportal.fun/api/trade"

// ChainReader is the RPC subset used to confirm submitted trades and read their effects.
type ChainReader interface {
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*solana.SignatureStatus, error)
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
}

// PumpPortalConfig configures the hosted trade API executor.
type PumpPortalConfig struct {
	APIURL          string
	APIKey          string
	SlippagePct     float64 // percent, as the API expects
	PriorityFee     float64 // SOL
	Pool            string
	Wallet          string // trading wallet public key; empty credits the largest balance increase
	ConfirmInterval time.Duration
	HTTPClient      *http.Client
}

// PumpPortalExecutor submits trades to the PumpPortal API and confirms them over RPC.
type PumpPortalExecutor struct {
	cfg    PumpPortalConfig
	client *http.Client
	chain  ChainReader
	prices PriceSource
	logger zerolog.Logger
	now    func() time.Time
}

// NewPumpPortalExecutor creates an executor. Zero config values take defaults.
func NewPumpPortalExecutor(cfg PumpPortalConfig, chain ChainReader, prices PriceSource, logger zerolog.Logger) *PumpPortalExecutor {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultPumpPortalURL
	}
	if cfg.Pool == "" {
		cfg.Pool = "pump"
	}
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = 500 * time.Millisecond
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &PumpPortalExecutor{
		cfg:    cfg,
		client: client,
		chain:  chain,
		prices: prices,
		logger: logger.With().Str("component", "pumpportal").Logger(),
		now:    time.Now,
	}
}

type tradeRequest struct {
	Action           string  `json:"action"`
	Mint             string  `json:"mint"`
	Amount           float64 `json:"amount"`
	DenominatedInSol string  `json:"denominatedInSol"`
	Slippage         float64 `json:"slippage"`
	PriorityFee      float64 `json:"priorityFee"`
	Pool             string  `json:"pool"`
}

type tradeResponse struct {
	Signature string          `json:"signature"`
	Errors    json.RawMessage `json:"errors"`
}

// Buy implements Executor. The fill quantity is the token balance the confirmed
// transaction credited; the price is the SOL spent per token received.
func (e *PumpPortalExecutor) Buy(ctx context.Context, mint string, amountSOL float64) (domain.Fill, error) {
	if amountSOL <= 0 {
		return domain.Fill{}, domain.Rejected("buy", errors.New("amount must be positive"))
	}
	// Nothing is sent when the mint cannot be quoted.
	preQuote, err := e.quote(ctx, mint)
	if err != nil {
		return domain.Fill{}, domain.Transient("buy", err)
	}

	sig, err := e.submit(ctx, "buy", tradeRequest{
		Action:           "buy",
		Mint:             mint,
		Amount:           amountSOL,
		DenominatedInSol: "true",
	})
	if err != nil {
		return domain.Fill{}, err
	}
	if err := e.confirm(ctx, "buy", sig); err != nil {
		return domain.Fill{}, err
	}

	amount := decimal.NewFromFloat(amountSOL)
	qty, err := e.received(ctx, sig, mint)
	if err != nil {
		price := decimal.NewFromFloat(e.fillPrice(ctx, mint, preQuote))
		qty = amount.Div(price)
		e.logger.Warn().Err(err).Str("signature", sig).Str("mint", mint).
			Str("estimated_quantity", qty.String()).
			Msg("token balance change unavailable, estimating quantity from quote")
	}
	return domain.Fill{
		Price:     amount.Div(qty).InexactFloat64(),
		Quantity:  qty.InexactFloat64(),
		Timestamp: e.now(),
		Signature: sig,
	}, nil
}

// Sell implements Executor.
func (e *PumpPortalExecutor) Sell(ctx context.Context, positionID int64, mint string, quantity float64) (domain.Fill, error) {
	if quantity <= 0 {
		return domain.Fill{}, domain.Rejected("sell", errors.New("quantity must be positive"))
	}
	preQuote, err := e.quote(ctx, mint)
	if err != nil {
		return domain.Fill{}, domain.Transient("sell", err)
	}

	sig, err := e.submit(ctx, "sell", tradeRequest{
		Action:           "sell",
		Mint:             mint,
		Amount:           quantity,
		DenominatedInSol: "false",
	})
	if err != nil {
		return domain.Fill{}, err
	}
	if err := e.confirm(ctx, "sell", sig); err != nil {
		return domain.Fill{}, err
	}

	e.logger.Debug().Int64("position_id", positionID).Str("signature", sig).Msg("sell confirmed")
	return domain.Fill{
		Price:     e.fillPrice(ctx, mint, preQuote),
		Quantity:  quantity,
		Timestamp: e.now(),
		Signature: sig,
	}, nil
}

// submit posts a trade and returns its signature.
func (e *PumpPortalExecutor) submit(ctx context.Context, op string, req tradeRequest) (string, error) {
	req.Slippage = e.cfg.SlippagePct
	req.PriorityFee = e.cfg.PriorityFee
	req.Pool = e.cfg.Pool

	body, err := json.Marshal(req)
	if err != nil {
		return "", domain.Rejected(op, fmt.Errorf("marshal request: %w", err))
	}

	endpoint, err := url.Parse(e.cfg.APIURL)
	if err != nil {
		return "", domain.Rejected(op, fmt.Errorf("parse api url: %w", err))
	}
	if e.cfg.APIKey != "" {
		q := endpoint.Query()
		q.Set("api-key", e.cfg.APIKey)
		endpoint.RawQuery = q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", domain.Rejected(op, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		if notSent(err) {
			return "", domain.Transient(op, fmt.Errorf("%w: %v", domain.ErrTransientNetwork, err))
		}
		return "", unknownOutcome(op, err)
	}
	defer resp.Body.Close()

	// The API has the request; an unreadable reply leaves the outcome unknown.
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", unknownOutcome(op, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", domain.Transient(op, fmt.Errorf("trade api status %d: %s", resp.StatusCode, truncate(respBody)))
	case resp.StatusCode >= 400:
		return "", domain.Rejected(op, fmt.Errorf("trade api status %d: %s", resp.StatusCode, truncate(respBody)))
	}

	var tr tradeResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", unknownOutcome(op, fmt.Errorf("decode response: %w", err))
	}
	if hasErrors(tr.Errors) {
		return "", domain.Rejected(op, fmt.Errorf("trade api errors: %s", string(tr.Errors)))
	}
	if tr.Signature == "" {
		return "", unknownOutcome(op, errors.New("trade api returned no signature"))
	}

	e.logger.Debug().Str("op", op).Str("mint", req.Mint).Str("signature", tr.Signature).Msg("trade submitted")
	return tr.Signature, nil
}

// confirm polls signature status until the trade lands, fails on chain, or ctx expires.
func (e *PumpPortalExecutor) confirm(ctx context.Context, op, sig string) error {
	ticker := time.NewTicker(e.cfg.ConfirmInterval)
	defer ticker.Stop()

	for {
		statuses, err := e.chain.GetSignatureStatuses(ctx, []string{sig})
		switch {
		case err != nil && ctx.Err() == nil:
			e.logger.Debug().Err(err).Str("signature", sig).Msg("status poll failed")
		case err == nil && len(statuses) > 0 && statuses[0] != nil:
			st := statuses[0]
			if st.Err != nil {
				return domain.Rejected(op, fmt.Errorf("transaction %s failed: %v", sig, st.Err))
			}
			if st.Landed() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return domain.Timeout(op, fmt.Errorf("confirm %s: %w", sig, ctx.Err()))
		case <-ticker.C:
		}
	}
}

// received polls the confirmed transaction for the token amount credited to the wallet.
func (e *PumpPortalExecutor) received(ctx context.Context, sig, mint string) (decimal.Decimal, error) {
	ticker := time.NewTicker(e.cfg.ConfirmInterval)
	defer ticker.Stop()

	for {
		tx, err := e.chain.GetTransaction(ctx, sig)
		switch {
		case err != nil && ctx.Err() == nil:
			e.logger.Debug().Err(err).Str("signature", sig).Msg("transaction fetch failed")
		case err == nil && tx != nil && tx.Meta != nil:
			qty, ok := tx.Meta.TokenDelta(mint, e.cfg.Wallet)
			if !ok || !qty.IsPositive() {
				return decimal.Zero, fmt.Errorf("transaction %s credited no %s", sig, mint)
			}
			return qty, nil
		}

		select {
		case <-ctx.Done():
			return decimal.Zero, fmt.Errorf("fetch transaction %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (e *PumpPortalExecutor) quote(ctx context.Context, mint string) (float64, error) {
	price, err := e.prices.CurrentPrice(ctx, mint)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, &domain.PriceError{Mint: mint, Err: fmt.Errorf("non-positive price %v", price)}
	}
	return price, nil
}

// fillPrice prefers a post-confirmation quote and falls back to the pre-trade one.
func (e *PumpPortalExecutor) fillPrice(ctx context.Context, mint string, fallback float64) float64 {
	price, err := e.prices.CurrentPrice(ctx, mint)
	if err != nil || price <= 0 {
		return fallback
	}
	return price
}

// notSent reports whether a client error happened before the request left the host.
func notSent(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// unknownOutcome reports a trade that may have been accepted. It surfaces as a timeout.
func unknownOutcome(op string, err error) error {
	return domain.Timeout(op, fmt.Errorf("%w: %v", domain.ErrOutcomeUnknown, err))
}

func hasErrors(raw json.RawMessage) bool {
	s := string(bytes.TrimSpace(raw))
	return s != "" && s != "null" && s != "[]" && s != "{}" && s != `""`
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..." + strconv.Itoa(len(b)-limit) + " more bytes"
	}
	return string(b)
}

var _ Executor = (*PumpPortalExecutor)(nil)
