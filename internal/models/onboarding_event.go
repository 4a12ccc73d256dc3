package models

import (
	"time"

	"gorm.io/gorm"
)

// OnboardingEvent is one analytics event about onboarding progress.
type OnboardingEvent struct {
	StepID     string         `json:"stepId"`
	Status     string         `json:"status"`
	OccurredAt time.Time      `json:"occurredAt"`
	Properties map[string]any `json:"properties,omitempty"`
}

// PendingEvent is an onboarding event that was not delivered before shutdown.
type PendingEvent struct {
	gorm.Model
	Event OnboardingEvent `gorm:"serializer:json"`
}
