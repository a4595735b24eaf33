package models

// Requests for surveillance HTTP endpoints. Defined in domain for consistency and reuse.

type RecordOutcomeRequest struct {
	WalletAddress string                 `json:"walletAddress" validate:"required,wallet"`
	Score         float64                `json:"score" validate:"gte=-1000,lte=1000"`
	Outcome       OutcomeLabel           `json:"outcome" validate:"required,oneof=TRUE_POSITIVE FALSE_POSITIVE TRUE_NEGATIVE FALSE_NEGATIVE UNKNOWN"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

type UpdateOutcomeRequest struct {
	WalletAddress string       `json:"walletAddress,omitempty"`
	OutcomeID     string       `json:"outcomeId,omitempty"`
	Outcome       OutcomeLabel `json:"outcome" validate:"required,oneof=TRUE_POSITIVE FALSE_POSITIVE TRUE_NEGATIVE FALSE_NEGATIVE UNKNOWN"`
}

type WalletAnalysisRequest struct {
	Address string `param:"address" json:"address" validate:"required,wallet"`
	Refresh bool   `query:"refresh" json:"refresh"`
}

type BatchAnalysisRequest struct {
	Wallets       []string `json:"wallets" validate:"required,min=1,max=500"`
	CalculateRank bool     `json:"calculateRank" default:"true"`
}

type SetWeightRequest struct {
	Source string  `json:"source" validate:"required"`
	Weight float64 `json:"weight" validate:"gte=0,lte=1"`
	Kind   string  `json:"kind" default:"signal" validate:"oneof=signal category"`
}

type ApplyPresetRequest struct {
	Preset WeightPreset `json:"preset" validate:"required,oneof=BALANCED CONSERVATIVE AGGRESSIVE INSIDER_FOCUSED"`
}

type ClusterAnalysisRequest struct {
	MarketID       string  `json:"marketId"`
	Trades         []Trade `json:"trades" validate:"required,min=1"`
	BypassCooldown bool    `json:"bypassCooldown"`
	Sliding        bool    `json:"sliding"`
}

type RankAlertRequest struct {
	Composite CompositeScoreResult `json:"composite" validate:"required"`
	Filter    *FilterResult        `json:"filter,omitempty"`
	UseCache  bool                 `json:"useCache" default:"true"`
}

type RankAlertsRequest struct {
	Composites []CompositeScoreResult `json:"composites" validate:"required,min=1,max=1000"`
}

type AddPredictionRequest struct {
	Prediction TrackedPrediction `json:"prediction" validate:"required"`
}

type UpdatePredictionRequest struct {
	WalletAddress string            `json:"walletAddress" validate:"required,wallet"`
	PredictionID  string            `json:"predictionId" validate:"required"`
	Outcome       PredictionOutcome `json:"outcome" validate:"required,oneof=PENDING CORRECT INCORRECT CANCELLED"`
	RealizedPnl   *float64          `json:"realizedPnl,omitempty"`
}
