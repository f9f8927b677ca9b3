package entity

import (
	"slices"
	"strings"
	"time"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
)

// Role is a parent's permission within a family.
type Role string

const (
	RoleOwner    Role = "OWNER"
	RoleFunder   Role = "FUNDER"
	RoleApprover Role = "APPROVER"
)

// Recurrence is how often a funding rule pays out.
type Recurrence string

const (
	RecurrenceOneTime Recurrence = "ONE_TIME"
	RecurrenceWeekly  Recurrence = "WEEKLY"
	RecurrenceMonthly Recurrence = "MONTHLY"
)

// Valid reports whether r is a known recurrence.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceOneTime, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleFunder, RoleApprover:
		return true
	}
	return false
}

// Address is a postal address attached to a user.
type Address struct {
	Street     string
	City       string
	PostalCode string
}

// UserProfile is the payload carried by user kinds.
type UserProfile struct {
	UserName string
	Address  *Address
	Roles    []Role
}

// RuleTerms is the payload carried by funding rule kinds.
type RuleTerms struct {
	Title      string
	Recurrence Recurrence
	Amount     int64
	// Purpose is the sub-account kind the rule pays into.
	Purpose Kind
}

// TransactionRecord is the payload carried by transaction kinds.
type TransactionRecord struct {
	Amount      int64
	Description string
}

// Entity is a tagged variant: the concrete Kind, its capability flags, and
// the payload that kind requires. Relationships live in the graph, never
// inside the entity.
type Entity struct {
	ID        ID
	Kind      Kind
	Caps      Capability
	Seq       uint64
	CreatedAt time.Time
	UpdatedAt time.Time
	Label     string
	Removed   bool

	User        *UserProfile
	Rule        *RuleTerms
	Transaction *TransactionRecord
}

// Spec describes an entity to construct.
type Spec struct {
	ID   ID
	Kind Kind
	// Caps optionally claims a capability set; a claim that differs from the
	// catalog is a schema violation.
	Caps        Capability
	CreatedAt   time.Time
	Label       string
	User        *UserProfile
	Rule        *RuleTerms
	Transaction *TransactionRecord
}

// New constructs an entity, rejecting combinations outside the catalog.
func New(spec Spec) (Entity, error) {
	id := ID(strings.TrimSpace(string(spec.ID)))
	if id == "" {
		return Entity{}, violation(spec.Kind, "entity id is required")
	}
	caps, ok := Capabilities(spec.Kind)
	if !ok {
		return Entity{}, violation(spec.Kind, "unknown entity kind")
	}
	if spec.Caps != 0 && spec.Caps != caps {
		return Entity{}, violation(spec.Kind, "capabilities "+spec.Caps.String()+" are not declared for this kind")
	}
	if spec.CreatedAt.IsZero() {
		return Entity{}, violation(spec.Kind, "creation time is required")
	}

	isUser := caps.Has(CapUser)
	isRule := caps.Has(CapFundingRule)
	isTx := caps.Has(CapTransaction)
	if (spec.User != nil) != isUser {
		return Entity{}, violation(spec.Kind, "user profile does not match kind")
	}
	if (spec.Rule != nil) != isRule {
		return Entity{}, violation(spec.Kind, "rule terms do not match kind")
	}
	if (spec.Transaction != nil) != isTx {
		return Entity{}, violation(spec.Kind, "transaction record does not match kind")
	}

	e := Entity{
		ID:        id,
		Kind:      spec.Kind,
		Caps:      caps,
		CreatedAt: spec.CreatedAt.UTC(),
		UpdatedAt: spec.CreatedAt.UTC(),
		Label:     strings.TrimSpace(spec.Label),
	}
	if isUser {
		profile, err := normalizeProfile(spec.Kind, *spec.User)
		if err != nil {
			return Entity{}, err
		}
		e.User = &profile
	}
	if isRule {
		terms, err := normalizeTerms(spec.Kind, *spec.Rule)
		if err != nil {
			return Entity{}, err
		}
		e.Rule = &terms
	}
	if isTx {
		record := *spec.Transaction
		record.Description = strings.TrimSpace(record.Description)
		e.Transaction = &record
	}
	return e, nil
}

// IsA reports whether e declares capability.
func (e Entity) IsA(capability Capability) bool {
	return e.Caps.Has(capability)
}

// Live reports whether e has not been removed.
func (e Entity) Live() bool {
	return !e.Removed
}

// DisplayName returns the user name for users and the label otherwise.
func (e Entity) DisplayName() string {
	if e.User != nil {
		return e.User.UserName
	}
	return e.Label
}

// HasRole reports whether a parent holds role.
func (e Entity) HasRole(role Role) bool {
	return e.User != nil && slices.Contains(e.User.Roles, role)
}

func normalizeProfile(kind Kind, profile UserProfile) (UserProfile, error) {
	profile.UserName = strings.TrimSpace(profile.UserName)
	if profile.UserName == "" {
		return UserProfile{}, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "user name is required", map[string]string{"field": "userName"})
	}
	if len(profile.Roles) > 0 && kind != KindParent {
		return UserProfile{}, violation(kind, "only parents hold roles")
	}
	var roles []Role
	for _, role := range profile.Roles {
		if !role.Valid() {
			return UserProfile{}, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "unknown role "+string(role), map[string]string{"field": "roles"})
		}
		if !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	profile.Roles = roles
	if profile.Address != nil {
		addr := *profile.Address
		addr.Street = strings.TrimSpace(addr.Street)
		addr.City = strings.TrimSpace(addr.City)
		addr.PostalCode = strings.TrimSpace(addr.PostalCode)
		profile.Address = &addr
	}
	return profile, nil
}

func normalizeTerms(kind Kind, terms RuleTerms) (RuleTerms, error) {
	terms.Title = strings.TrimSpace(terms.Title)
	if !terms.Recurrence.Valid() {
		return RuleTerms{}, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "unknown recurrence "+string(terms.Recurrence), map[string]string{"field": "recurrence"})
	}
	if _, ok := ParsePurpose(string(terms.Purpose)); !ok {
		return RuleTerms{}, violation(kind, "rule purpose must be a sub-account kind")
	}
	if terms.Amount <= 0 {
		return RuleTerms{}, apperrors.New(apperrors.CodeInvalidAmount, "rule amount must be positive")
	}
	return terms, nil
}

func violation(kind Kind, message string) error {
	return apperrors.WithMetadata(apperrors.CodeSchemaViolation, message, map[string]string{"kind": string(kind)})
}
