package model

import "time"

// Parameter keys understood by the engine.
const (
	ParamRiskPerTrade     = "risk_per_trade"
	ParamLookback         = "lookback"
	ParamVolumeMultiplier = "volume_multiplier"
	ParamCheckInterval    = "check_interval"
)

// Defaults used when a parameter is missing.
const (
	DefaultRiskPerTrade     = 10.0
	DefaultLookback         = 20
	DefaultVolumeMultiplier = 1.5
	DefaultCheckInterval    = 60
)

// Parameter is a process-wide strategy setting stored as text.
type Parameter struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Parameter) TableName() string {
	return "parameters"
}
