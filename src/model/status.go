package model

import "time"

// EngineStatus is the snapshot served on /api/status.
type EngineStatus struct {
	Exchange          string     `json:"exchange"`
	Running           bool       `json:"running"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	SchedulerCycles   int        `json:"scheduler_cycles"`
	LastCycleAt       *time.Time `json:"last_cycle_at,omitempty"`
	LastSweepAt       *time.Time `json:"last_sweep_at,omitempty"`
	ActiveCancelTasks int        `json:"active_cancel_tasks"`
	PendingCloses     int        `json:"pending_closes"`
	OpenOrders        int        `json:"open_orders"`
	OpenPositions     int        `json:"open_positions"`
}
