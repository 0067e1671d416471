package bot

import (
	"context"

	"hyperliquid-trading-bot/internal/ai/llm"
	"hyperliquid-trading-bot/internal/autopilot"
	"hyperliquid-trading-bot/internal/logging"
)

// patternScoreFloor marks a setup as pattern-backed for the conservative
// gate: a confluence this strong only forms when several indicators agree.
const patternScoreFloor = 80

// sentimentGate glues the call gate and the LLM client into the engine's
// advisory hook. A gate denial or a failed call returns nil and the tick
// proceeds without sentiment input.
type sentimentGate struct {
	gate   *llm.Gate
	client *llm.Client
	log    *logging.Logger
}

func newSentimentGate(gate *llm.Gate, client *llm.Client, log *logging.Logger) *sentimentGate {
	return &sentimentGate{gate: gate, client: client, log: log.WithComponent("sentiment")}
}

func (s *sentimentGate) Advise(ctx context.Context, req autopilot.SentimentRequest) *autopilot.SentimentAdvisory {
	pattern := ""
	if req.Score >= patternScoreFloor {
		pattern = "confluence"
	}

	decision := s.gate.Check(llm.GateRequest{
		Mode:       req.Mode,
		Score:      req.Score,
		Pattern:    pattern,
		Volatility: req.Volatility,
		Force:      req.Force,
	})
	if !decision.Allowed {
		s.log.Debug("sentiment call gated", "symbol", req.Symbol, "reason", decision.Reason)
		return nil
	}

	advisory := llm.RequestSentiment(ctx, s.client, req.Symbol, string(req.Direction),
		req.Price, req.Change24h, req.Volatility, req.UserPrompt)
	if advisory == nil {
		return nil
	}

	s.gate.RecordCall(req.Symbol, req.Score, "trade sentiment", "sentiment")
	return &autopilot.SentimentAdvisory{
		Sentiment:   advisory.Sentiment,
		NewsScore:   advisory.NewsScore,
		ShouldBoost: advisory.ShouldBoost,
		ShouldAvoid: advisory.ShouldAvoid,
	}
}
