// Package worker provides background job processing for VoyaAI.
package worker

import (
	"time"
)

// JobType names a worker job in a Pub/Sub message.
type JobType string

const (
	// JobCostRepair re-runs failed segment cost lookups.
	JobCostRepair JobType = "cost_repair"

	// JobHealthCheck verifies the plan store is reachable.
	JobHealthCheck JobType = "health_check"
)

// RepairConfig holds configuration for the cost repair job.
type RepairConfig struct {
	// Concurrency is the number of plans repaired at once.
	// Default: 4
	Concurrency int

	// Timeout bounds the lookups of a single plan.
	// Default: 60 seconds
	Timeout time.Duration

	// PageSize is the number of plans listed per store round trip.
	// Default: 100
	PageSize int
}

// DefaultRepairConfig returns the default repair configuration.
func DefaultRepairConfig() RepairConfig {
	return RepairConfig{
		Concurrency: 4,
		Timeout:     60 * time.Second,
		PageSize:    100,
	}
}

func (c RepairConfig) withDefaults() RepairConfig {
	d := DefaultRepairConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	return c
}
