package turn

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the orchestrator's fixed replies, voice and timeouts.
type Config struct {
	// HearingTroubleReply is spoken when the caller's audio could not be
	// fetched or transcribed.
	HearingTroubleReply string `yaml:"hearing_trouble_reply"`
	// ErrorReply is spoken when reply generation fails.
	ErrorReply string `yaml:"error_reply"`

	// Language is the transcription hint and the say-text locale.
	Language string `yaml:"language"`
	// Voice is the telephony voice for say-text delivery.
	Voice string `yaml:"voice"`

	// SubjectPrefix starts every notification subject.
	SubjectPrefix string `yaml:"subject_prefix"`
	// NotifyEmergency also notifies the operator on emergency redirects.
	NotifyEmergency bool `yaml:"notify_emergency"`

	Timeouts Timeouts `yaml:"timeouts"`
}

// Timeouts bound each external stage.
type Timeouts struct {
	Fetch         time.Duration `yaml:"fetch"`
	Transcription time.Duration `yaml:"transcription"`
	Generation    time.Duration `yaml:"generation"`
	Synthesis     time.Duration `yaml:"synthesis"`
	Publish       time.Duration `yaml:"publish"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		HearingTroubleReply: "I had trouble hearing that, please repeat.",
		ErrorReply:          "Sorry, something went wrong. The team has been notified.",
		Language:            "en-AU",
		Voice:               "Polly.Brian",
		SubjectPrefix:       "[Switchboard]",
		Timeouts: Timeouts{
			Fetch:         15 * time.Second,
			Transcription: 15 * time.Second,
			Generation:    15 * time.Second,
			Synthesis:     25 * time.Second,
			Publish:       10 * time.Second,
		},
	}
}

// ApplyDefaults fills unset fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if strings.TrimSpace(c.HearingTroubleReply) == "" {
		c.HearingTroubleReply = d.HearingTroubleReply
	}
	if strings.TrimSpace(c.ErrorReply) == "" {
		c.ErrorReply = d.ErrorReply
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.Voice == "" {
		c.Voice = d.Voice
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = d.SubjectPrefix
	}
	if c.Timeouts.Fetch <= 0 {
		c.Timeouts.Fetch = d.Timeouts.Fetch
	}
	if c.Timeouts.Transcription <= 0 {
		c.Timeouts.Transcription = d.Timeouts.Transcription
	}
	if c.Timeouts.Generation <= 0 {
		c.Timeouts.Generation = d.Timeouts.Generation
	}
	if c.Timeouts.Synthesis <= 0 {
		c.Timeouts.Synthesis = d.Timeouts.Synthesis
	}
	if c.Timeouts.Publish <= 0 {
		c.Timeouts.Publish = d.Timeouts.Publish
	}
}

// Validate reports settings that would break the pipeline. Call it after
// ApplyDefaults.
func (c *Config) Validate() error {
	total := c.Timeouts.Fetch + c.Timeouts.Transcription + c.Timeouts.Generation +
		c.Timeouts.Synthesis + c.Timeouts.Publish
	if total > 5*time.Minute {
		return fmt.Errorf("turn: stage timeouts sum to %s, above the 5m limit", total)
	}
	return nil
}
