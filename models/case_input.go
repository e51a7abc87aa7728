package models

import (
	"fmt"
	"strings"
)

// Lawfulness classifies the legal basis for the processing at issue
type Lawfulness string

const (
	LawfulAppropriateBasis   Lawfulness = "lawful_and_appropriate_basis"
	LawfulPrincipleViolation Lawfulness = "lawful_but_principle_violation"
	NoValidBasis             Lawfulness = "no_valid_basis"
	ExemptOrRestricted       Lawfulness = "exempt_or_restricted"
)

// RightsCompliance classifies how data subject rights were handled
type RightsCompliance string

const (
	RightsFullCompliance    RightsCompliance = "full_compliance"
	RightsPartialCompliance RightsCompliance = "partial_compliance"
	RightsNonCompliance     RightsCompliance = "non_compliance"
	RightsNotTriggered      RightsCompliance = "not_triggered"
)

// RiskManagement classifies the safeguards in place before the breach
type RiskManagement string

const (
	RiskProactiveSafeguards    RiskManagement = "proactive_safeguards"
	RiskReactiveOnly           RiskManagement = "reactive_only"
	RiskInsufficientProtection RiskManagement = "insufficient_protection"
	RiskNotApplicable          RiskManagement = "not_applicable"
)

// Accountability classifies the controller's governance posture
type Accountability string

const (
	FullyAccountable          Accountability = "fully_accountable"
	PartiallyAccountable      Accountability = "partially_accountable"
	NotAccountable            Accountability = "not_accountable"
	AccountabilityNotRequired Accountability = "not_required"
)

var validLawfulness = map[Lawfulness]bool{
	LawfulAppropriateBasis:   true,
	LawfulPrincipleViolation: true,
	NoValidBasis:             true,
	ExemptOrRestricted:       true,
}

var validRights = map[RightsCompliance]bool{
	RightsFullCompliance:    true,
	RightsPartialCompliance: true,
	RightsNonCompliance:     true,
	RightsNotTriggered:      true,
}

var validRisk = map[RiskManagement]bool{
	RiskProactiveSafeguards:    true,
	RiskReactiveOnly:           true,
	RiskInsufficientProtection: true,
	RiskNotApplicable:          true,
}

var validAccountability = map[Accountability]bool{
	FullyAccountable:          true,
	PartiallyAccountable:      true,
	NotAccountable:            true,
	AccountabilityNotRequired: true,
}

// ValidationError reports a missing or unrecognized field on a CaseInput.
// It is always returned before any retrieval or oracle call is made.
type ValidationError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q (must be one of: %s)",
		e.Field, e.Value, strings.Join(e.Allowed, ", "))
}

// CaseInput is a breach case submitted for impact prediction: a free-text
// description plus the four GDPR classification dimensions assigned during
// case intake.
type CaseInput struct {
	CaseDescription             string           `json:"case_description"`
	LawfulnessOfProcessing      Lawfulness       `json:"lawfulness_of_processing"`
	DataSubjectRightsCompliance RightsCompliance `json:"data_subject_rights_compliance"`
	RiskManagementAndSafeguards RiskManagement   `json:"risk_management_and_safeguards"`
	AccountabilityAndGovernance Accountability   `json:"accountability_and_governance"`
}

// Validate rejects missing or unrecognized classification values
func (c *CaseInput) Validate() error {
	if strings.TrimSpace(c.CaseDescription) == "" {
		return &ValidationError{
			Field:   "case_description",
			Value:   c.CaseDescription,
			Allowed: []string{"non-empty text"},
		}
	}
	if !validLawfulness[c.LawfulnessOfProcessing] {
		return &ValidationError{
			Field: "lawfulness_of_processing",
			Value: string(c.LawfulnessOfProcessing),
			Allowed: []string{
				string(LawfulAppropriateBasis), string(LawfulPrincipleViolation),
				string(NoValidBasis), string(ExemptOrRestricted),
			},
		}
	}
	if !validRights[c.DataSubjectRightsCompliance] {
		return &ValidationError{
			Field: "data_subject_rights_compliance",
			Value: string(c.DataSubjectRightsCompliance),
			Allowed: []string{
				string(RightsFullCompliance), string(RightsPartialCompliance),
				string(RightsNonCompliance), string(RightsNotTriggered),
			},
		}
	}
	if !validRisk[c.RiskManagementAndSafeguards] {
		return &ValidationError{
			Field: "risk_management_and_safeguards",
			Value: string(c.RiskManagementAndSafeguards),
			Allowed: []string{
				string(RiskProactiveSafeguards), string(RiskReactiveOnly),
				string(RiskInsufficientProtection), string(RiskNotApplicable),
			},
		}
	}
	if !validAccountability[c.AccountabilityAndGovernance] {
		return &ValidationError{
			Field: "accountability_and_governance",
			Value: string(c.AccountabilityAndGovernance),
			Allowed: []string{
				string(FullyAccountable), string(PartiallyAccountable),
				string(NotAccountable), string(AccountabilityNotRequired),
			},
		}
	}
	return nil
}

// ClassificationLabels returns the four classification values in a fixed order.
// Used for search-query enrichment and for classification-overlap scoring.
func (c *CaseInput) ClassificationLabels() []string {
	return []string{
		string(c.LawfulnessOfProcessing),
		string(c.DataSubjectRightsCompliance),
		string(c.RiskManagementAndSafeguards),
		string(c.AccountabilityAndGovernance),
	}
}
