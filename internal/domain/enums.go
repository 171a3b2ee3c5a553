package domain

// AuditCategory groups audit actions into families that share a details payload shape.
type AuditCategory string

const (
	AuditCategoryAuth         AuditCategory = "AUTH"
	AuditCategoryProfile      AuditCategory = "PROFILE"
	AuditCategoryEvidence     AuditCategory = "EVIDENCE"
	AuditCategoryJob          AuditCategory = "JOB"
	AuditCategoryApplication  AuditCategory = "APPLICATION"
	AuditCategoryAutoApply    AuditCategory = "AUTO_APPLY"
	AuditCategorySubscription AuditCategory = "SUBSCRIPTION"
	AuditCategoryAdmin        AuditCategory = "ADMIN"
	AuditCategoryPolicy       AuditCategory = "POLICY"
)

func (c AuditCategory) String() string { return string(c) }

// AuditAction is the closed taxonomy of user, system and admin actions
// recorded in the audit ledger.
type AuditAction string

const (
	// Authentication.
	AuditActionUserLogin     AuditAction = "USER_LOGIN"
	AuditActionUserLogout    AuditAction = "USER_LOGOUT"
	AuditActionUserRegister  AuditAction = "USER_REGISTER"
	AuditActionLoginFailed   AuditAction = "LOGIN_FAILED"
	AuditActionPasswordReset AuditAction = "PASSWORD_RESET"
	AuditActionTokenRefresh  AuditAction = "TOKEN_REFRESH"

	// Profile lifecycle.
	AuditActionProfileCreate AuditAction = "PROFILE_CREATE"
	AuditActionProfileUpdate AuditAction = "PROFILE_UPDATE"
	AuditActionProfileDelete AuditAction = "PROFILE_DELETE"
	AuditActionProfileExport AuditAction = "PROFILE_EXPORT"

	// Evidence and proof lifecycle.
	AuditActionEvidenceUpload AuditAction = "EVIDENCE_UPLOAD"
	AuditActionEvidenceVerify AuditAction = "EVIDENCE_VERIFY"
	AuditActionEvidenceDelete AuditAction = "EVIDENCE_DELETE"
	AuditActionProofGenerate  AuditAction = "PROOF_GENERATE"
	AuditActionProofShare     AuditAction = "PROOF_SHARE"

	// Job actions.
	AuditActionJobView   AuditAction = "JOB_VIEW"
	AuditActionJobSave   AuditAction = "JOB_SAVE"
	AuditActionJobUnsave AuditAction = "JOB_UNSAVE"
	AuditActionJobHide   AuditAction = "JOB_HIDE"

	// Application lifecycle.
	AuditActionApplicationCreate       AuditAction = "APPLICATION_CREATE"
	AuditActionApplicationSubmit       AuditAction = "APPLICATION_SUBMIT"
	AuditActionApplicationWithdraw     AuditAction = "APPLICATION_WITHDRAW"
	AuditActionApplicationStatusChange AuditAction = "APPLICATION_STATUS_CHANGE"

	// Auto-apply rule lifecycle.
	AuditActionAutoApplyRuleCreate  AuditAction = "AUTO_APPLY_RULE_CREATE"
	AuditActionAutoApplyRuleUpdate  AuditAction = "AUTO_APPLY_RULE_UPDATE"
	AuditActionAutoApplyRuleDelete  AuditAction = "AUTO_APPLY_RULE_DELETE"
	AuditActionAutoApplyRuleEnable  AuditAction = "AUTO_APPLY_RULE_ENABLE"
	AuditActionAutoApplyRuleDisable AuditAction = "AUTO_APPLY_RULE_DISABLE"

	// Subscription lifecycle.
	AuditActionSubscriptionCreate AuditAction = "SUBSCRIPTION_CREATE"
	AuditActionSubscriptionUpdate AuditAction = "SUBSCRIPTION_UPDATE"
	AuditActionSubscriptionCancel AuditAction = "SUBSCRIPTION_CANCEL"
	AuditActionSubscriptionRenew  AuditAction = "SUBSCRIPTION_RENEW"

	// Admin actions.
	AuditActionAdminUserSuspend  AuditAction = "ADMIN_USER_SUSPEND"
	AuditActionAdminUserRestore  AuditAction = "ADMIN_USER_RESTORE"
	AuditActionAdminRoleChange   AuditAction = "ADMIN_ROLE_CHANGE"
	AuditActionAdminConfigChange AuditAction = "ADMIN_CONFIG_CHANGE"
	AuditActionAdminDataExport   AuditAction = "ADMIN_DATA_EXPORT"

	// Policy violations.
	AuditActionPolicyViolation   AuditAction = "POLICY_VIOLATION"
	AuditActionRateLimitExceeded AuditAction = "RATE_LIMIT_EXCEEDED"
)

var auditActionCategories = map[AuditAction]AuditCategory{
	AuditActionUserLogin:     AuditCategoryAuth,
	AuditActionUserLogout:    AuditCategoryAuth,
	AuditActionUserRegister:  AuditCategoryAuth,
	AuditActionLoginFailed:   AuditCategoryAuth,
	AuditActionPasswordReset: AuditCategoryAuth,
	AuditActionTokenRefresh:  AuditCategoryAuth,

	AuditActionProfileCreate: AuditCategoryProfile,
	AuditActionProfileUpdate: AuditCategoryProfile,
	AuditActionProfileDelete: AuditCategoryProfile,
	AuditActionProfileExport: AuditCategoryProfile,

	AuditActionEvidenceUpload: AuditCategoryEvidence,
	AuditActionEvidenceVerify: AuditCategoryEvidence,
	AuditActionEvidenceDelete: AuditCategoryEvidence,
	AuditActionProofGenerate:  AuditCategoryEvidence,
	AuditActionProofShare:     AuditCategoryEvidence,

	AuditActionJobView:   AuditCategoryJob,
	AuditActionJobSave:   AuditCategoryJob,
	AuditActionJobUnsave: AuditCategoryJob,
	AuditActionJobHide:   AuditCategoryJob,

	AuditActionApplicationCreate:       AuditCategoryApplication,
	AuditActionApplicationSubmit:       AuditCategoryApplication,
	AuditActionApplicationWithdraw:     AuditCategoryApplication,
	AuditActionApplicationStatusChange: AuditCategoryApplication,

	AuditActionAutoApplyRuleCreate:  AuditCategoryAutoApply,
	AuditActionAutoApplyRuleUpdate:  AuditCategoryAutoApply,
	AuditActionAutoApplyRuleDelete:  AuditCategoryAutoApply,
	AuditActionAutoApplyRuleEnable:  AuditCategoryAutoApply,
	AuditActionAutoApplyRuleDisable: AuditCategoryAutoApply,

	AuditActionSubscriptionCreate: AuditCategorySubscription,
	AuditActionSubscriptionUpdate: AuditCategorySubscription,
	AuditActionSubscriptionCancel: AuditCategorySubscription,
	AuditActionSubscriptionRenew:  AuditCategorySubscription,

	AuditActionAdminUserSuspend:  AuditCategoryAdmin,
	AuditActionAdminUserRestore:  AuditCategoryAdmin,
	AuditActionAdminRoleChange:   AuditCategoryAdmin,
	AuditActionAdminConfigChange: AuditCategoryAdmin,
	AuditActionAdminDataExport:   AuditCategoryAdmin,

	AuditActionPolicyViolation:   AuditCategoryPolicy,
	AuditActionRateLimitExceeded: AuditCategoryPolicy,
}

func (a AuditAction) String() string { return string(a) }

func (a AuditAction) IsValid() bool {
	_, ok := auditActionCategories[a]
	return ok
}

// Category returns the family the action belongs to, or "" for unknown actions.
func (a AuditAction) Category() AuditCategory {
	return auditActionCategories[a]
}

// ConsentAction is the outcome of one auto-apply consent workflow run.
type ConsentAction string

const (
	ConsentActionSubmitted ConsentAction = "submitted"
	ConsentActionFailed    ConsentAction = "failed"
	ConsentActionSkipped   ConsentAction = "skipped"
	ConsentActionDuplicate ConsentAction = "duplicate"
)

func (a ConsentAction) String() string { return string(a) }

func (a ConsentAction) IsValid() bool {
	switch a {
	case ConsentActionSubmitted, ConsentActionFailed, ConsentActionSkipped, ConsentActionDuplicate:
		return true
	}
	return false
}

// UserRole represents the authorization level of a caller.
type UserRole string

const (
	UserRoleUser   UserRole = "user"
	UserRoleAdmin  UserRole = "admin"
	UserRoleSystem UserRole = "system"
)

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleUser, UserRoleAdmin, UserRoleSystem:
		return true
	}
	return false
}

// IsPrivileged reports whether the role may act on behalf of other actors.
func (r UserRole) IsPrivileged() bool {
	return r == UserRoleAdmin || r == UserRoleSystem
}
