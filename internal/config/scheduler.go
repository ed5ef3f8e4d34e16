package config

import (
	"fmt"
	"time"
)

// SchedulerConfig holds every tunable of the session builder, the acquisition
// scheduler, the long-term scheduler and the leech manager. Durations are
// YAML strings ("4h", "72h") parsed on access.
type SchedulerConfig struct {
	// Long-term memory model
	TargetRetention float64   `yaml:"target_retention"` // default 0.90
	FSRSWeights     []float64 `yaml:"fsrs_weights"`     // opaque parameter vector
	StabilityFloor  float64   `yaml:"stability_floor"`  // days; known below this is lapsed

	// Session builder
	MaxCohort                  int     `yaml:"max_cohort"`
	MaxAcquiring               int     `yaml:"max_acquiring"`
	MaxAcquiringRelaxed        int     `yaml:"max_acquiring_relaxed"`
	MaxBox1                    int     `yaml:"max_box1"`
	MaxBox1Relaxed             int     `yaml:"max_box1_relaxed"`
	AutoIntroCeiling           int     `yaml:"auto_intro_ceiling"`
	ComprehensibilityThreshold float64 `yaml:"comprehensibility_threshold"`
	FreshnessBaseline          int     `yaml:"freshness_baseline"`
	MaxOnDemandPerSession      int     `yaml:"max_on_demand_per_session"`
	DefaultSessionLimit        int     `yaml:"default_session_limit"`
	MaxRepetitionOverflow      int     `yaml:"max_repetition_overflow"`

	// Accuracy bands for the auto-introduction budget. A recent accuracy below
	// Bands[0] introduces nothing; between band i-1 and i introduces Budgets[i].
	AccuracyBands     []float64 `yaml:"accuracy_bands"`      // {0.70, 0.85, 0.92}
	AccuracyBudgets   []int     `yaml:"accuracy_budgets"`    // {0, 4, 7, 10}
	AccuracyWindow    int       `yaml:"accuracy_window"`     // last N word ratings
	ListeningAutoIntro bool     `yaml:"listening_auto_intro"` // off by the source's choice

	// Acquisition (three-box) phase
	BoxIntervals       [3]string `yaml:"box_intervals"` // 4h, 24h, 72h
	FirstRetryAgain    string    `yaml:"first_retry_again"`
	FirstRetryHard     string    `yaml:"first_retry_hard"`
	GraduationReviews  int       `yaml:"graduation_reviews"`
	GraduationAccuracy float64   `yaml:"graduation_accuracy"`
	GraduationSpanDays int       `yaml:"graduation_span_days"`

	// Leech manager
	LeechMinReviews  int      `yaml:"leech_min_reviews"`
	LeechAccuracy    float64  `yaml:"leech_accuracy"`
	LeechCooldowns   []string `yaml:"leech_cooldowns"` // 72h, 168h, 336h
	RootGuardWindow  string   `yaml:"root_guard_window"`
}

// DefaultSchedulerConfig returns the setpoints of the scheduler.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TargetRetention: 0.90,
		StabilityFloor:  1.0,

		MaxCohort:                  100,
		MaxAcquiring:               30,
		MaxAcquiringRelaxed:        50,
		MaxBox1:                    8,
		MaxBox1Relaxed:             15,
		AutoIntroCeiling:           10,
		ComprehensibilityThreshold: 0.60,
		FreshnessBaseline:          8,
		MaxOnDemandPerSession:      10,
		DefaultSessionLimit:        10,
		MaxRepetitionOverflow:      15,

		AccuracyBands:   []float64{0.70, 0.85, 0.92},
		AccuracyBudgets: []int{0, 4, 7, 10},
		AccuracyWindow:  20,

		BoxIntervals:       [3]string{"4h", "24h", "72h"},
		FirstRetryAgain:    "5m",
		FirstRetryHard:     "10m",
		GraduationReviews:  5,
		GraduationAccuracy: 0.60,
		GraduationSpanDays: 2,

		LeechMinReviews: 5,
		LeechAccuracy:   0.50,
		LeechCooldowns:  []string{"72h", "168h", "336h"},
		RootGuardWindow: "168h",
	}
}

// Validate checks internal consistency of the scheduler configuration.
func (c *SchedulerConfig) Validate() error {
	if c.TargetRetention <= 0 || c.TargetRetention >= 1 {
		return fmt.Errorf("target_retention must be in (0,1), got %v", c.TargetRetention)
	}
	if len(c.AccuracyBudgets) != len(c.AccuracyBands)+1 {
		return fmt.Errorf("accuracy_budgets must have one more entry than accuracy_bands")
	}
	if c.MaxCohort <= 0 {
		return fmt.Errorf("max_cohort must be positive")
	}
	for i, s := range c.BoxIntervals {
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("box interval %d: %w", i+1, err)
		}
	}
	for i, s := range c.LeechCooldowns {
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("leech cooldown %d: %w", i+1, err)
		}
	}
	return nil
}

// BoxInterval returns the review interval for a box (1-based).
func (c *SchedulerConfig) BoxInterval(box int) time.Duration {
	if box < 1 {
		box = 1
	}
	if box > 3 {
		box = 3
	}
	d, err := time.ParseDuration(c.BoxIntervals[box-1])
	if err != nil {
		// Validated at load; fall back to the stock ladder.
		return []time.Duration{4 * time.Hour, 24 * time.Hour, 72 * time.Hour}[box-1]
	}
	return d
}

// FirstRetryInterval returns the shortened interval used when a word's very
// first reviews fail (rating 1 or 2 with zero prior corrects).
func (c *SchedulerConfig) FirstRetryInterval(rating int) time.Duration {
	s := c.FirstRetryAgain
	if rating == 2 {
		s = c.FirstRetryHard
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		if rating == 2 {
			return 10 * time.Minute
		}
		return 5 * time.Minute
	}
	return d
}

// LeechCooldown returns the reintroduction cooldown for the Nth suspension.
func (c *SchedulerConfig) LeechCooldown(leechCount int) time.Duration {
	if len(c.LeechCooldowns) == 0 {
		return 14 * 24 * time.Hour
	}
	idx := leechCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(c.LeechCooldowns) {
		idx = len(c.LeechCooldowns) - 1
	}
	d, err := time.ParseDuration(c.LeechCooldowns[idx])
	if err != nil {
		return 14 * 24 * time.Hour
	}
	return d
}

// RootGuardDuration returns the lookback window of the root interference guard.
func (c *SchedulerConfig) RootGuardDuration() time.Duration {
	d, err := time.ParseDuration(c.RootGuardWindow)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}
