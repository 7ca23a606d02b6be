// internal/model/config.go
package model

type PacingProfile string

const (
	ProfileNew         PacingProfile = "new"
	ProfileWarming     PacingProfile = "warming"
	ProfileEstablished PacingProfile = "established"
)

// Range is an inclusive [Min, Max] interval. Units depend on the field
// it configures: seconds for delays, minutes for rest periods, message
// counts for rest thresholds.
type Range struct {
	Min int `json:"min" validate:"gte=0"`
	Max int `json:"max" validate:"gtefield=Min"`
}

// CampaignConfig is the per-campaign execution configuration, persisted
// as JSON on the campaign row. Optional fields override the defaults of
// the selected pacing profile; the merge is explicit in pacing.Merge.
type CampaignConfig struct {
	Profile       PacingProfile `json:"profile" validate:"oneof=new warming established"`
	MessageDelay  *Range        `json:"message_delay,omitempty"`  // seconds
	RestThreshold *Range        `json:"rest_threshold,omitempty"` // messages
	RestDelay     *Range        `json:"rest_delay,omitempty"`     // minutes
	DailyLimit    int           `json:"daily_limit,omitempty"`
	MaxRetries    int           `json:"max_retries,omitempty" validate:"gte=0,lte=10"`

	// ProactiveChecks selects whether business-hours and health checks run
	// inside the loop (default) or only reactively on error ("maximum
	// throughput" mode). Nil means proactive.
	ProactiveChecks *bool `json:"proactive_checks,omitempty"`

	BusinessHours BusinessHours `json:"business_hours"`
}

// Proactive resolves the mode flag, defaulting to true.
func (c CampaignConfig) Proactive() bool {
	return c.ProactiveChecks == nil || *c.ProactiveChecks
}

// BusinessHours describes the allowed sending window. Hours are in the
// window's own timezone, never the host's.
type BusinessHours struct {
	Enabled           bool   `json:"enabled"`
	StartHour         int    `json:"start_hour" validate:"gte=0,lte=23"`
	EndHour           int    `json:"end_hour" validate:"gte=0,lte=24"`
	ExcludeWeekends   bool   `json:"exclude_weekends"`
	ExcludeLunchBreak bool   `json:"exclude_lunch_break"`
	LunchStart        int    `json:"lunch_start,omitempty" validate:"gte=0,lte=23"`
	LunchEnd          int    `json:"lunch_end,omitempty" validate:"gte=0,lte=24"`
	Timezone          string `json:"timezone,omitempty"`
}
