package autopilot

import (
	"fmt"
	"time"
)

// Mode selects how aggressively the engine trades.
type Mode string

const (
	ModeAggressive   Mode = "aggressive"
	ModeModerate     Mode = "moderate"
	ModeConservative Mode = "conservative"
)

// Settings limits.
const (
	maxBagSize          = 5
	maxPositionSizePct  = 10.0
	maxOpenPositionsCap = 5
)

// Settings is the per-user trading configuration.
type Settings struct {
	BotName               string   `json:"bot_name"`
	Mode                  Mode     `json:"mode"`
	DynamicLeverage       bool     `json:"dynamic_leverage"`
	MaxLeverage           int      `json:"max_leverage"`
	MinConfirmations      int      `json:"min_confirmations"`
	UserPrompt            string   `json:"user_prompt,omitempty"`
	TradingBag            []string `json:"trading_bag"`
	PositionSizePct       float64  `json:"position_size_pct"`
	StopLossPct           float64  `json:"stop_loss_pct"`
	TakeProfitPct         float64  `json:"take_profit_pct"`
	MaxSimultaneousPos    int      `json:"max_simultaneous_positions"`
	MaxTradesPerDay       int      `json:"max_trades_per_day"`
	SlippagePct           float64  `json:"slippage_pct"`
	EnableTrailingStop    bool     `json:"enable_trailing_stop"`
	TrailingActivationPct float64  `json:"trailing_stop_activation"`
	TrailingDistancePct   float64  `json:"trailing_stop_distance"`
	UseSmartSLTP          bool     `json:"use_smart_sltp"`
	EnableSessionFilter   bool     `json:"enable_session_filter"`
	EnableLLMSentiment    bool     `json:"enable_llm_sentiment"`
	AllowCounterTrend     bool     `json:"allow_counter_trend"`
	MaxDrawdownPct        float64  `json:"max_drawdown_pct"`
	PauseAfterLosses      int      `json:"pause_after_losses"`
}

// modeProfile carries the per-mode tuning the engine consults each tick.
type modeProfile struct {
	loopInterval     time.Duration
	minConfirmations int
	minStrength      float64
	positionSizePct  float64
	stopLossPct      float64
	takeProfitPct    float64
	trailingActivate float64
	trailingDistance float64
	maxTradesPerDay  int
	pauseAfterLosses int
	allowCounter     bool
}

var modeProfiles = map[Mode]modeProfile{
	ModeAggressive: {
		loopInterval:     8 * time.Second,
		minConfirmations: 3,
		minStrength:      50,
		positionSizePct:  3.0,
		stopLossPct:      1.5,
		takeProfitPct:    3.0,
		trailingActivate: 0.3,
		trailingDistance: 0.15,
		maxTradesPerDay:  30,
		pauseAfterLosses: 4,
		allowCounter:     true,
	},
	ModeModerate: {
		loopInterval:     30 * time.Second,
		minConfirmations: 4,
		minStrength:      60,
		positionSizePct:  2.0,
		stopLossPct:      2.0,
		takeProfitPct:    4.0,
		trailingActivate: 0.5,
		trailingDistance: 0.25,
		maxTradesPerDay:  15,
		pauseAfterLosses: 3,
		allowCounter:     false,
	},
	ModeConservative: {
		loopInterval:     120 * time.Second,
		minConfirmations: 5,
		minStrength:      70,
		positionSizePct:  1.0,
		stopLossPct:      2.5,
		takeProfitPct:    5.0,
		trailingActivate: 1.0,
		trailingDistance: 0.5,
		maxTradesPerDay:  5,
		pauseAfterLosses: 2,
		allowCounter:     false,
	},
}

// profile resolves the mode's tuning, defaulting to moderate.
func (m Mode) profile() modeProfile {
	if p, ok := modeProfiles[m]; ok {
		return p
	}
	return modeProfiles[ModeModerate]
}

// LoopInterval is the analysis tick period for the mode.
func (m Mode) LoopInterval() time.Duration { return m.profile().loopInterval }

// MinConfirmations is the confluence signal floor for the mode.
func (m Mode) MinConfirmations() int { return m.profile().minConfirmations }

// MinStrength is the confluence strength floor for the mode.
func (m Mode) MinStrength() float64 { return m.profile().minStrength }

// DefaultSettings returns a fully-populated settings object for a mode.
func DefaultSettings(mode Mode) Settings {
	p := mode.profile()
	return Settings{
		BotName:               "hyperbot",
		Mode:                  mode,
		DynamicLeverage:       true,
		MaxLeverage:           10,
		MinConfirmations:      p.minConfirmations,
		TradingBag:            []string{"BTC-PERP", "ETH-PERP"},
		PositionSizePct:       p.positionSizePct,
		StopLossPct:           p.stopLossPct,
		TakeProfitPct:         p.takeProfitPct,
		MaxSimultaneousPos:    3,
		MaxTradesPerDay:       p.maxTradesPerDay,
		SlippagePct:           0.001,
		EnableTrailingStop:    true,
		TrailingActivationPct: p.trailingActivate,
		TrailingDistancePct:   p.trailingDistance,
		UseSmartSLTP:          true,
		EnableSessionFilter:   false,
		EnableLLMSentiment:    false,
		AllowCounterTrend:     p.allowCounter,
		MaxDrawdownPct:        10.0,
		PauseAfterLosses:      p.pauseAfterLosses,
	}
}

// Validate checks caps and fills gaps from the mode defaults.
func (s *Settings) Validate() error {
	switch s.Mode {
	case ModeAggressive, ModeModerate, ModeConservative:
	default:
		return fmt.Errorf("unknown mode %q", s.Mode)
	}

	if len(s.TradingBag) == 0 {
		return fmt.Errorf("trading bag is empty")
	}
	if len(s.TradingBag) > maxBagSize {
		return fmt.Errorf("trading bag holds %d symbols, max %d", len(s.TradingBag), maxBagSize)
	}
	if s.PositionSizePct <= 0 || s.PositionSizePct > maxPositionSizePct {
		return fmt.Errorf("position size %.2f%% outside (0, %.0f]", s.PositionSizePct, maxPositionSizePct)
	}
	if s.MaxSimultaneousPos <= 0 || s.MaxSimultaneousPos > maxOpenPositionsCap {
		return fmt.Errorf("max simultaneous positions %d outside [1, %d]", s.MaxSimultaneousPos, maxOpenPositionsCap)
	}
	if s.StopLossPct <= 0 || s.TakeProfitPct <= 0 {
		return fmt.Errorf("stop loss and take profit must be positive")
	}

	p := s.Mode.profile()
	if s.MinConfirmations < p.minConfirmations {
		s.MinConfirmations = p.minConfirmations
	}
	if s.MaxTradesPerDay <= 0 {
		s.MaxTradesPerDay = p.maxTradesPerDay
	}
	if s.PauseAfterLosses <= 0 {
		s.PauseAfterLosses = p.pauseAfterLosses
	}
	if s.TrailingActivationPct <= 0 {
		s.TrailingActivationPct = p.trailingActivate
	}
	if s.TrailingDistancePct <= 0 {
		s.TrailingDistancePct = p.trailingDistance
	}
	if s.SlippagePct <= 0 {
		s.SlippagePct = 0.001
	}
	return nil
}
