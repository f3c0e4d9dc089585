package models

// Requests for HTTP endpoints. Defined in domain for consistency and reuse.

type ResolveRequest struct {
	RawName    string `json:"raw_name" validate:"required,max=512"`
	Source     string `json:"source" default:"api" validate:"required,max=64"`
	EntityType string `json:"entity_type" default:"ALIAS" validate:"oneof=SUBSIDIARY SUPPLIER ALIAS"`
	NoCache    bool   `json:"no_cache"`
}

type IngestSignalRequest struct {
	SignalType string         `json:"signal_type" validate:"required"`
	Ticker     string         `json:"ticker" validate:"required,max=32,ticker"`
	Timestamp  string         `json:"timestamp"`
	Value      *float64       `json:"value" validate:"required"`
	Metadata   map[string]any `json:"metadata"`
	SourceURL  string         `json:"source_url" validate:"omitempty,url"`
}

type SignalWindowRequest struct {
	Ticker     string `param:"ticker" validate:"required"`
	From       string `query:"from"`
	To         string `query:"to"`
	SignalType string `query:"signal_type"`
	Limit      int    `query:"limit" default:"5000" validate:"gte=1,lte=100000"`
}

type LatestSignalRequest struct {
	Ticker     string `param:"ticker" validate:"required"`
	SignalType string `query:"signal_type" validate:"required"`
	TTL        string `query:"ttl"`
}

type CausalityRequest struct {
	Ticker    string `param:"ticker" validate:"required"`
	Candidate string `query:"signal_type" validate:"required"`
	Reference string `query:"reference" default:"PRICE" validate:"required"`
	Frequency string `query:"frequency" default:"weekly" validate:"oneof=daily weekly monthly quarterly"`
	MaxLag    int    `query:"max_lag" default:"4" validate:"gte=1,lte=12"`
}

type NowcastRequest struct {
	Ticker     string `param:"ticker" validate:"required"`
	Target     string `query:"target" default:"REVENUE" validate:"required"`
	Candidates string `query:"candidates" validate:"required"`
	Frequency  string `query:"frequency" default:"quarterly" validate:"oneof=daily weekly monthly quarterly"`
}

type CurateAliasRequest struct {
	RawName    string  `json:"raw_name" validate:"required,max=512"`
	Ticker     string  `json:"ticker" validate:"required,max=32,ticker"`
	EntityType string  `json:"entity_type" default:"ALIAS" validate:"oneof=SUBSIDIARY SUPPLIER ALIAS"`
	Confidence float64 `json:"confidence" default:"1" validate:"gte=0,lte=1"`
}

type ApproveReviewRequest struct {
	ID         string  `param:"id" validate:"required"`
	Ticker     string  `json:"ticker" validate:"required,max=32,ticker"`
	EntityType string  `json:"entity_type" validate:"omitempty,oneof=SUBSIDIARY SUPPLIER ALIAS"`
	Confidence float64 `json:"confidence" default:"1" validate:"gte=0,lte=1"`
}

type ReviewListRequest struct {
	Limit  int `query:"limit" default:"100" validate:"gte=1,lte=1000"`
	Offset int `query:"offset" validate:"gte=0"`
}

type AliasListRequest struct {
	Ticker string `query:"ticker"`
	Limit  int    `query:"limit" default:"500" validate:"gte=1,lte=10000"`
}
