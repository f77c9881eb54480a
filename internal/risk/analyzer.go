// Package risk provides pre-trade risk controls: hard static limits and
// advisory LLM-generated risk analysis.
package risk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dgraph-io/ristretto"
	"github.com/shopspring/decimal"

	"tradebot/internal/config"
	"tradebot/internal/domain"
	"tradebot/internal/util"
)

const systemPrompt = `You are a trading risk analyst. Given a proposed stock
trade and a snapshot of the account placing it, respond with a single JSON
object and nothing else:
{"score": <0-100 integer, 0 safest>, "level": "low"|"moderate"|"high",
 "factors": [{"name": "...", "impact": "low"|"medium"|"high", "description": "..."}],
 "commentary": "<two sentences at most>"}`

// llm is the minimal completion surface the analyzer needs; it exists so
// tests can substitute a canned model.
type llm interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// anthropicLLM calls the Anthropic Messages API.
type anthropicLLM struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func (a *anthropicLLM) complete(ctx context.Context, prompt string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// Analyzer produces a RiskAnalysis for each trade request. Results are
// cached for a short TTL keyed by a hash of trade and portfolio attributes;
// LLM failures degrade to a heuristic fallback rather than blocking trades.
type Analyzer struct {
	llm     llm
	cache   *ristretto.Cache
	ttl     time.Duration
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAnalyzer creates an Analyzer backed by the Anthropic API.
func NewAnalyzer(cfg config.RiskConfig, log *slog.Logger) (*Analyzer, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating risk cache: %w", err)
	}

	return &Analyzer{
		llm: &anthropicLLM{
			client:    anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey)),
			model:     anthropic.Model(cfg.Model),
			maxTokens: int64(cfg.MaxTokens),
		},
		cache:   cache,
		ttl:     time.Duration(cfg.CacheTTLSeconds) * time.Second,
		limiter: util.NewRateLimiter(cfg.LLMPerMinute),
		log:     log,
	}, nil
}

// newAnalyzerWithLLM wires a custom completion backend; used by tests.
func newAnalyzerWithLLM(backend llm, ttl time.Duration, log *slog.Logger) (*Analyzer, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		llm:     backend,
		cache:   cache,
		ttl:     ttl,
		limiter: util.NewRateLimiter(6000),
		log:     log,
	}, nil
}

// Analyze returns a risk assessment for the trade. It never returns an
// error: when the LLM is unreachable or returns garbage, a heuristic
// fallback analysis is produced instead.
func (a *Analyzer) Analyze(ctx context.Context, req *domain.TradeRequest, acct *domain.AccountInfo, price decimal.Decimal) *domain.RiskAnalysis {
	key := cacheKey(req, acct, price)
	if v, ok := a.cache.Get(key); ok {
		cached := *(v.(*domain.RiskAnalysis))
		cached.FromCache = true
		return &cached
	}

	analysis, err := a.analyzeLLM(ctx, req, acct, price)
	if err != nil {
		a.log.Warn("risk analysis fell back to heuristic", "symbol", req.Symbol, "error", err)
		analysis = fallbackAnalysis(req, acct, price)
	}

	a.cache.SetWithTTL(key, analysis, 1, a.ttl)
	a.cache.Wait()
	return analysis
}

func (a *Analyzer) analyzeLLM(ctx context.Context, req *domain.TradeRequest, acct *domain.AccountInfo, price decimal.Decimal) (*domain.RiskAnalysis, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	prompt := buildPrompt(req, acct, price)

	var raw string
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		var callErr error
		raw, callErr = a.llm.complete(ctx, prompt)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("llm call: %w", err)
	}

	analysis, err := parseAnalysis(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing llm response: %w", err)
	}
	return analysis, nil
}

// buildPrompt renders the trade and portfolio attributes the model scores.
func buildPrompt(req *domain.TradeRequest, acct *domain.AccountInfo, price decimal.Decimal) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Proposed trade: %s %s shares of %s", req.Side, req.Qty, req.Symbol)
	if req.LimitPrice != nil {
		fmt.Fprintf(&sb, " at limit %s", req.LimitPrice)
	} else {
		fmt.Fprintf(&sb, " at market (~%s)", price)
	}
	fmt.Fprintf(&sb, "\nGross monetary value: %s\n", req.GMV(price).StringFixed(2))
	fmt.Fprintf(&sb, "Account equity: %s\nBuying power: %s\nCash: %s\n",
		acct.Equity.StringFixed(2), acct.BuyingPower.StringFixed(2), acct.Cash.StringFixed(2))
	fmt.Fprintf(&sb, "Day trades in last 5 days: %d\nPattern day trader: %t\n",
		acct.DaytradeCount, acct.PatternDay)
	return sb.String()
}

// parseAnalysis extracts the first JSON object from the model output and
// decodes it. Models wrap JSON in prose and code fences often enough that
// scanning for the braces is the robust option.
func parseAnalysis(raw string) (*domain.RiskAnalysis, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var analysis domain.RiskAnalysis
	if err := json.Unmarshal([]byte(raw[start:end+1]), &analysis); err != nil {
		return nil, err
	}

	if analysis.Score < 0 {
		analysis.Score = 0
	}
	if analysis.Score > 100 {
		analysis.Score = 100
	}
	if analysis.Level == "" {
		analysis.Level = domain.LevelForScore(analysis.Score)
	}
	return &analysis, nil
}

// fallbackAnalysis scores the trade on portfolio concentration alone.
func fallbackAnalysis(req *domain.TradeRequest, acct *domain.AccountInfo, price decimal.Decimal) *domain.RiskAnalysis {
	gmv := req.GMV(price)

	pct := decimal.Zero
	if acct.Equity.IsPositive() {
		pct = gmv.Div(acct.Equity).Mul(decimal.NewFromInt(100))
	}

	var score int
	switch {
	case pct.GreaterThan(decimal.NewFromInt(50)):
		score = 85
	case pct.GreaterThan(decimal.NewFromInt(20)):
		score = 60
	case pct.GreaterThan(decimal.NewFromInt(5)):
		score = 40
	default:
		score = 20
	}

	return &domain.RiskAnalysis{
		Score: score,
		Level: domain.LevelForScore(score),
		Factors: []domain.RiskFactor{{
			Name:        "concentration",
			Impact:      string(domain.LevelForScore(score)),
			Description: fmt.Sprintf("trade is %s%% of account equity", pct.StringFixed(1)),
		}},
		Commentary: "Automated heuristic assessment; risk model was unavailable.",
		Fallback:   true,
	}
}

// cacheKey hashes the attributes that determine an assessment. Price and
// equity are bucketed so minor drift between repeat requests still hits the
// cache within the TTL.
func cacheKey(req *domain.TradeRequest, acct *domain.AccountInfo, price decimal.Decimal) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s",
		req.Symbol,
		req.Side,
		req.Qty.String(),
		price.Round(0).String(),
		acct.Equity.Div(decimal.NewFromInt(1000)).Round(0).String(),
	)
	return hex.EncodeToString(h.Sum(nil))
}
