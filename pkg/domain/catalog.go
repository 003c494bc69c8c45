package domain

import "time"

type PlatformStatus string

const (
	PlatformNotSupported PlatformStatus = "NOT_SUPPORTED"
	PlatformInProgress   PlatformStatus = "IN_PROGRESS"
	PlatformLive         PlatformStatus = "LIVE"
	PlatformDeprecated   PlatformStatus = "DEPRECATED"
)

func (s PlatformStatus) Valid() bool {
	switch s {
	case PlatformNotSupported, PlatformInProgress, PlatformLive, PlatformDeprecated:
		return true
	}
	return false
}

type Capabilities struct {
	Payouts   bool `json:"payouts" yaml:"payouts"`
	Recurring bool `json:"recurring" yaml:"recurring"`
	Refunds   bool `json:"refunds" yaml:"refunds"`
	Crypto    bool `json:"crypto" yaml:"crypto"`
}

type PlatformProcessor struct {
	ProcessorID  string         `json:"processor_id" yaml:"id"`
	Name         string         `json:"name" yaml:"name"`
	Status       PlatformStatus `json:"status" yaml:"status"`
	Capabilities Capabilities   `json:"capabilities" yaml:"capabilities"`
	UpdatedAt    time.Time      `json:"updated_at" yaml:"-"`
}

// CountryProcessorFeature is what a processor can deliver in one country. Status is
// one of NOT_SUPPORTED, IN_PROGRESS or LIVE.
type CountryProcessorFeature struct {
	ProcessorID      string         `json:"processor_id" yaml:"processor_id"`
	Country          string         `json:"country" yaml:"country"`
	SupportedMethods []string       `json:"supported_methods" yaml:"supported_methods"`
	Capabilities     Capabilities   `json:"capabilities" yaml:"capabilities"`
	Status           PlatformStatus `json:"status" yaml:"status"`
}
