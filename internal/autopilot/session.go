package autopilot

import "time"

// SessionRecommendation is the session filter's verdict for the current hour.
type SessionRecommendation string

const (
	SessionTrade   SessionRecommendation = "trade"
	SessionCaution SessionRecommendation = "caution"
	SessionAvoid   SessionRecommendation = "avoid"
)

// SessionInfo names the active trading sessions and the filter verdict.
type SessionInfo struct {
	Sessions       []string              `json:"sessions"`
	Recommendation SessionRecommendation `json:"recommendation"`
}

// EvaluateSession classifies the UTC hour. Perps trade around the clock, but
// liquidity clusters around the equity sessions; the London/New York overlap
// is the prime window and the post-US lull is the worst.
func EvaluateSession(now time.Time) *SessionInfo {
	utc := now.UTC()
	hour := utc.Hour()

	var sessions []string
	if hour < 8 {
		sessions = append(sessions, "asia")
	}
	if hour >= 7 && hour < 16 {
		sessions = append(sessions, "europe")
	}
	if hour >= 13 && hour < 22 {
		sessions = append(sessions, "us")
	}

	info := &SessionInfo{Sessions: sessions}
	switch {
	case utc.Weekday() == time.Saturday || utc.Weekday() == time.Sunday:
		info.Recommendation = SessionCaution
	case len(sessions) >= 2:
		info.Recommendation = SessionTrade
	case len(sessions) == 0:
		// Post-US close, pre-Asia open.
		info.Recommendation = SessionAvoid
	default:
		info.Recommendation = SessionCaution
	}
	return info
}
