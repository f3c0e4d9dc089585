package models

import (
	"regexp"
	"strings"
	"time"
)

// SignalType names an observed alternative-data series.
type SignalType string

const (
	SignalHiringSpike     SignalType = "HIRING_SPIKE"
	SignalShippingVolume  SignalType = "SHIPPING_VOLUME"
	SignalAppRank         SignalType = "APP_RANK"
	SignalSocialSentiment SignalType = "SOCIAL_SENTIMENT"
	SignalWebTraffic      SignalType = "WEB_TRAFFIC"
	SignalPrice           SignalType = "PRICE"
	SignalRevenue         SignalType = "REVENUE"
)

var signalTypePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Valid accepts the known types and any upper snake case extension.
func (t SignalType) Valid() bool {
	return signalTypePattern.MatchString(string(t))
}

// SignalEvent is an immutable observation for one ticker. Corrections are new events.
type SignalEvent struct {
	SignalID   string         `json:"signal_id"`
	Ticker     string         `json:"ticker"`
	SignalType SignalType     `json:"signal_type"`
	Value      float64        `json:"value"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	SourceURL  string         `json:"source_url,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// PartitionKey identifies the ordered sequence the engine reasons about.
type PartitionKey struct {
	Ticker     string
	SignalType SignalType
}

func (e SignalEvent) Partition() PartitionKey {
	return PartitionKey{Ticker: e.Ticker, SignalType: e.SignalType}
}

// NormalizeTicker upper-cases and trims a ticker symbol.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SignalQuery selects events for one ticker in [From, To).
type SignalQuery struct {
	Ticker      string
	SignalTypes []SignalType
	From        time.Time
	To          time.Time
	Limit       int
	// Newest keeps the latest Limit events instead of the earliest. Results are
	// still returned oldest first.
	Newest bool
}

// AnomalyStatus explains whether a z-score was emitted.
type AnomalyStatus string

const (
	AnomalyScored              AnomalyStatus = "SCORED"
	AnomalyInsufficientHistory AnomalyStatus = "INSUFFICIENT_HISTORY"
	AnomalyFlat                AnomalyStatus = "FLAT"
	AnomalyUnavailable         AnomalyStatus = "SCORE_UNAVAILABLE"
)

// AnomalyScore is the rolling z-score of one event against its prior window.
type AnomalyScore struct {
	Event     SignalEvent   `json:"event"`
	Status    AnomalyStatus `json:"status"`
	Z         *float64      `json:"z"`
	Mean      float64       `json:"mean"`
	StdDev    float64       `json:"stddev"`
	History   int           `json:"history"`
	Anomalous bool          `json:"anomalous"`
	Reason    string        `json:"reason,omitempty"`
}

// Frequency is a resampling bucket width.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	default:
		return false
	}
}

// CausalityStatus is the verdict of a lagged-causality screen.
type CausalityStatus string

const (
	CausalityPredictive          CausalityStatus = "PREDICTIVE"
	CausalityUnproven            CausalityStatus = "UNPROVEN"
	CausalityNonStationary       CausalityStatus = "NON_STATIONARY"
	CausalityInsufficientHistory CausalityStatus = "INSUFFICIENT_HISTORY"
)

// LagResult is the Granger F-test at one lag order.
type LagResult struct {
	Lag    int     `json:"lag"`
	FStat  float64 `json:"f_stat"`
	PValue float64 `json:"p_value"`
	DF1    int     `json:"df1"`
	DF2    int     `json:"df2"`
}

// CausalityResult reports whether Candidate helps predict Reference.
type CausalityResult struct {
	Ticker       string          `json:"ticker"`
	Candidate    SignalType      `json:"candidate"`
	Reference    SignalType      `json:"reference"`
	Frequency    Frequency       `json:"frequency"`
	Status       CausalityStatus `json:"status"`
	PValue       *float64        `json:"p_value"`
	BestLag      int             `json:"best_lag,omitempty"`
	Lags         []LagResult     `json:"lags,omitempty"`
	Differenced  int             `json:"differenced"`
	Observations int             `json:"observations"`
	Reason       string          `json:"reason,omitempty"`
}

// Predictive reports acceptance for nowcasting.
func (r CausalityResult) Predictive() bool {
	return r.Status == CausalityPredictive
}

// NowcastStatus explains whether an estimate was produced.
type NowcastStatus string

const (
	NowcastEstimated           NowcastStatus = "ESTIMATED"
	NowcastNoPredictiveSignals NowcastStatus = "NO_PREDICTIVE_SIGNALS"
	NowcastInsufficientHistory NowcastStatus = "INSUFFICIENT_HISTORY"
)

// NowcastInput records one accepted predictor for provenance.
type NowcastInput struct {
	SignalType  SignalType `json:"signal_type"`
	PValue      float64    `json:"p_value"`
	Coefficient float64    `json:"coefficient"`
	LatestValue float64    `json:"latest_value"`
}

// Nowcast is a short-horizon estimate of Target for Period.
type Nowcast struct {
	Ticker       string            `json:"ticker"`
	Target       SignalType        `json:"target"`
	Frequency    Frequency         `json:"frequency"`
	Status       NowcastStatus     `json:"status"`
	Period       time.Time         `json:"period"`
	Estimate     *float64          `json:"estimate"`
	Intercept    float64           `json:"intercept"`
	RSquared     float64           `json:"r_squared"`
	Observations int               `json:"observations"`
	Inputs       []NowcastInput    `json:"inputs"`
	Screened     []CausalityResult `json:"screened"`
}

// Freshness reports whether the latest event of a series is within a TTL.
type Freshness struct {
	Ticker     string       `json:"ticker"`
	SignalType SignalType   `json:"signal_type"`
	Latest     *SignalEvent `json:"latest"`
	Fresh      bool         `json:"fresh"`
	Age        string       `json:"age,omitempty"`
}
