package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// AuditDetails is the typed payload attached to an audit entry. The concrete
// type is selected by the action's category, so every action carries a
// well-defined shape.
type AuditDetails interface {
	Category() AuditCategory
}

// AuthDetails accompanies authentication actions.
type AuthDetails struct {
	Method        string `json:"method,omitempty"`
	Provider      string `json:"provider,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
}

// ProfileDetails accompanies profile lifecycle actions.
type ProfileDetails struct {
	ChangedFields []string `json:"changedFields,omitempty"`
	Format        string   `json:"format,omitempty"`
}

// EvidenceDetails accompanies evidence and proof lifecycle actions.
type EvidenceDetails struct {
	EvidenceType string `json:"evidenceType,omitempty"`
	ContentHash  string `json:"contentHash,omitempty"`
	SharedWith   string `json:"sharedWith,omitempty"`
}

// JobDetails accompanies job actions.
type JobDetails struct {
	Company string `json:"company,omitempty"`
	Title   string `json:"title,omitempty"`
	Source  string `json:"source,omitempty"`
}

// ApplicationDetails accompanies application lifecycle actions.
type ApplicationDetails struct {
	JobID      string `json:"jobId,omitempty"`
	FromStatus string `json:"fromStatus,omitempty"`
	ToStatus   string `json:"toStatus,omitempty"`
	Automated  bool   `json:"automated,omitempty"`
}

// RuleDetails accompanies auto-apply rule lifecycle actions.
type RuleDetails struct {
	RuleName      string   `json:"ruleName,omitempty"`
	ChangedFields []string `json:"changedFields,omitempty"`
	Enabled       *bool    `json:"enabled,omitempty"`
}

// SubscriptionDetails accompanies subscription lifecycle actions.
type SubscriptionDetails struct {
	Plan         string `json:"plan,omitempty"`
	PreviousPlan string `json:"previousPlan,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// AdminDetails accompanies admin actions.
type AdminDetails struct {
	TargetUserID string `json:"targetUserId,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Setting      string `json:"setting,omitempty"`
	OldValue     string `json:"oldValue,omitempty"`
	NewValue     string `json:"newValue,omitempty"`
}

// PolicyViolationDetails accompanies policy violations.
type PolicyViolationDetails struct {
	Policy   string `json:"policy"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (AuthDetails) Category() AuditCategory            { return AuditCategoryAuth }
func (ProfileDetails) Category() AuditCategory         { return AuditCategoryProfile }
func (EvidenceDetails) Category() AuditCategory        { return AuditCategoryEvidence }
func (JobDetails) Category() AuditCategory             { return AuditCategoryJob }
func (ApplicationDetails) Category() AuditCategory     { return AuditCategoryApplication }
func (RuleDetails) Category() AuditCategory            { return AuditCategoryAutoApply }
func (SubscriptionDetails) Category() AuditCategory    { return AuditCategorySubscription }
func (AdminDetails) Category() AuditCategory           { return AuditCategoryAdmin }
func (PolicyViolationDetails) Category() AuditCategory { return AuditCategoryPolicy }

// DetailsFor returns a new, empty payload of the kind expected for action,
// or nil for an unknown action.
func DetailsFor(action AuditAction) AuditDetails {
	switch action.Category() {
	case AuditCategoryAuth:
		return &AuthDetails{}
	case AuditCategoryProfile:
		return &ProfileDetails{}
	case AuditCategoryEvidence:
		return &EvidenceDetails{}
	case AuditCategoryJob:
		return &JobDetails{}
	case AuditCategoryApplication:
		return &ApplicationDetails{}
	case AuditCategoryAutoApply:
		return &RuleDetails{}
	case AuditCategorySubscription:
		return &SubscriptionDetails{}
	case AuditCategoryAdmin:
		return &AdminDetails{}
	case AuditCategoryPolicy:
		return &PolicyViolationDetails{}
	}
	return nil
}

// DecodeAuditDetails parses raw JSON into the payload type keyed by action.
// Unknown fields are rejected. A nil or empty raw payload yields nil.
func DecodeAuditDetails(action AuditAction, raw json.RawMessage) (AuditDetails, error) {
	target := DetailsFor(action)
	if target == nil {
		return nil, NewValidationError("action", fmt.Sprintf("unknown action %q", action))
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	if err := strictUnmarshal(raw, target); err != nil {
		return nil, NewValidationError("details", err.Error())
	}
	return target, nil
}

// ConsentDetails is the payload of a consent ledger entry.
type ConsentDetails struct {
	ConsentID string         `json:"consentId"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func strictUnmarshal(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
