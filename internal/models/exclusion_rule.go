package models

import (
	"fmt"
	"time"
)

// RuleType classifies a persistent exclusion rule
type RuleType string

const (
	RuleTypeCountry  RuleType = "country"
	RuleTypeCategory RuleType = "category"
	RuleTypeSupplier RuleType = "supplier"
	RuleTypeKeyword  RuleType = "keyword"
)

// ValidRuleType reports whether t is one of the four recognized kinds
func ValidRuleType(t RuleType) bool {
	switch t {
	case RuleTypeCountry, RuleTypeCategory, RuleTypeSupplier, RuleTypeKeyword:
		return true
	}
	return false
}

// ExclusionRule is a process-wide persistent product filter, independent of
// any job. Unique on (RuleType, Value); mutable only through the admin API.
type ExclusionRule struct {
	ID        string    `json:"id"`
	RuleType  RuleType  `json:"rule_type" validate:"required"`
	Value     string    `json:"value" validate:"required,min=1"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the rule before persistence
func (r *ExclusionRule) Validate() error {
	if !ValidRuleType(r.RuleType) {
		return fmt.Errorf("invalid rule_type %q", r.RuleType)
	}
	if r.Value == "" {
		return fmt.Errorf("rule value is required")
	}
	return nil
}
