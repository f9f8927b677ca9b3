package ledger

import (
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/command"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/graph"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/invariant"
)

// Decide returns the decision for a ledger command against snapshot g.
func Decide(g *graph.Graph, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}
	d := decider{g: g, cmd: cmd, now: now().UTC()}
	var (
		entityType string
		entityID   string
		payload    any
		err        error
	)
	switch cmd.Type {
	case CommandTypeInstitutionRegister:
		entityType = string(entity.KindInstitution)
		entityID, payload, err = d.registerUser(entity.KindInstitution)
	case CommandTypeParentRegister:
		entityType = string(entity.KindParent)
		entityID, payload, err = d.registerUser(entity.KindParent)
	case CommandTypeFamilyCreate:
		entityType = string(entity.KindFamily)
		entityID, payload, err = d.createFamily()
	case CommandTypeFamilyAdminAdd:
		entityType = string(entity.KindFamily)
		entityID, payload, err = d.addAdmin()
	case CommandTypeChildAdd:
		entityType = string(entity.KindChild)
		entityID, payload, err = d.addChild()
	case CommandTypeDeviceRegister:
		entityType = string(entity.KindDevice)
		entityID, payload, err = d.registerDevice()
	case CommandTypeFundingSourceLink:
		entityType = string(entity.KindExternalFunding)
		entityID, payload, err = d.linkFundingSource()
	case CommandTypeRecipientRegister:
		entityType = string(entity.KindPaymentRecipient)
		entityID, payload, err = d.registerRecipient()
	case CommandTypeRuleCreate:
		entityType, entityID, payload, err = d.createRule()
	case CommandTypeTransactionRecord:
		entityType, entityID, payload, err = d.recordTransaction()
	case CommandTypeEntityRemove:
		entityType, entityID, payload, err = d.removeEntity()
	default:
		err = apperrors.WithMetadata(apperrors.CodeInvalidArgument, "command type is not supported", map[string]string{"field": "type"})
	}
	if err != nil {
		return command.RejectErr(err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return command.RejectErr(err)
	}
	return command.Accept(command.NewEvent(cmd, eventFor[cmd.Type], entityType, entityID, payloadJSON, d.now))
}

type decider struct {
	g   *graph.Graph
	cmd command.Command
	now time.Time
}

func (d decider) decode(target any) error {
	if err := json.Unmarshal(d.cmd.PayloadJSON, target); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "payload json is invalid", err)
	}
	return nil
}

func (d decider) registerUser(kind entity.Kind) (string, any, error) {
	var p UserRegisterPayload
	if err := d.decode(&p); err != nil {
		return "", nil, err
	}
	p.UserID = strings.TrimSpace(p.UserID)
	if err := d.requireNewID(p.UserID, "user_id"); err != nil {
		return "", nil, err
	}
	e, err := newUser(p.UserID, kind, p.UserName, p.Address, p.Roles, d.now)
	if err != nil {
		return "", nil, err
	}
	p.UserName = e.User.UserName
	p.Roles = rolesOf(e.User.Roles)
	return p.UserID, p, nil
}

func (d decider) createFamily() (string, any, error) {
	var p FamilyCreatePayload
	if err := d.decode(&p); err != nil {
		return "", nil, err
	}
	actor, err := d.actor()
	if err != nil {
		return "", nil, err
	}
	if !actor.IsA(entity.CapFamilyAdmin) {
		return "", nil, unauthorized(actor.ID, "only parents and institutions create families")
	}
	if err := d.requireSingleFamily(actor); err != nil {
		return "", nil, err
	}
	p.FamilyID = strings.TrimSpace(p.FamilyID)
	p.WalletID = strings.TrimSpace(p.WalletID)
	if err := d.requireNewID(p.FamilyID, "family_id"); err != nil {
		return "", nil, err
	}
	if err := d.requireNewID(p.WalletID, "wallet_id"); err != nil {
		return "", nil, err
	}
	if err := distinct(p.FamilyID, p.WalletID); err != nil {
		return "", nil, err
	}
	p.Label = strings.TrimSpace(p.Label)
	if p.Label == "" {
		return "", nil, required("label")
	}
	p.WalletLabel = strings.TrimSpace(p.WalletLabel)
	if p.WalletLabel == "" {
		p.WalletLabel = p.Label + " wallet"
	}
	p.AdminID = string(actor.ID)
	return p.FamilyID, p, nil
}

func (d decider) addAdmin() (string, any, error) {
	var p AdminAddPayload
	if err := d.decode(&p); err != nil {
		return "", nil, err
	}
	family, err := d.family(p.FamilyID)
	if err != nil {
		return "", nil, err
	}
	if err := d.requireAdmin(family.ID); err != nil {
		return "", nil, err
	}
	admin, err := d.g.Lookup(entity.ID(strings.TrimSpace(p.AdminID)))
	if err != nil {
		return "", nil, err
	}
	if !admin.IsA(entity.CapFamilyAdmin) {
		return "", nil, apperrors.WithMetadata(apperrors.CodeCapabilityMismatch, string(admin.Kind)+" cannot administer a family", map[string]string{
			"id":   string(admin.ID),
			"kind": string(admin.Kind),
			"role": "admin",
		})
	}
	if d.g.IsAdmin(family.ID, admin.ID) {
		return "", nil, apperrors.WithMetadata(apperrors.CodeIdentityConflict, "already an admin", map[string]string{"id": string(admin.ID)})
	}
	if err := d.requireSingleFamily(admin); err != nil {
		return "", nil, err
	}
	return string(family.ID), AdminAddPayload{FamilyID: string(family.ID), AdminID: string(admin.ID)}, nil
}

func (d decider) addChild() (string, any, error) {
	var p ChildAddPayload
	if err := d.decode(&p); err != nil {
		return "", nil, err
	}
	family, err := d.family(p.FamilyID)
	if err != nil {
		return "", nil, err
	}
	if err := d.requireAdmin(family.ID); err != nil {
		return "", nil, err
	}
	p.FamilyID = string(family.ID)
	p.ChildID = strings.TrimSpace(p.ChildID)
	p.AccountID = strings.TrimSpace(p.AccountID)
	ids := []string{p.ChildID, p.AccountID}
	if err := d.requireNewID(p.ChildID, "child_id"); err != nil {
		return "", nil, err
	}
	if err := d.requireNewID(p.AccountID, "account_id"); err != nil {
		return "", nil, err
	}
	subs := make(map[string]string, len(entity.SubAccountKinds))
	for _, purpose := range entity.SubAccountKinds {
		id := strings.TrimSpace(p.SubAccounts[string(purpose)])
		if err := d.requireNewID(id, "sub_accounts."+string(purpose)); err != nil {
			return "", nil, err
		}
		subs[string(purpose)] = id
		ids = append(ids, id)
	}
	if len(p.SubAccounts) != len(subs) {
		return "", nil, apperrors.WithMetadata(apperrors.CodeSchemaViolation, "unknown sub-account purpose", map[string]string{"kind": string(entity.KindChildAccount)})
	}
	if err := distinct(ids...); err != nil {
		return "", nil, err
	}
	p.SubAccounts = subs
	e, err := newUser(p.ChildID, entity.KindChild, p.UserName, p.Address, nil, d.now)
	if err != nil {
		return "", nil, err
	}
	p.UserName = e.User.UserName
	return p.ChildID, p, nil
}

func (d decider) registerDevice() (string, any, error) {
	var p DeviceRegisterPayload
	if err := d.decode(&p); err != nil {
		return "", nil, err
	}
	actor, err := d.actor()
	if err != nil {
		return "", nil, err
	}
	user, err := d.g.Lookup(entity.ID(strings.TrimSpace(p.UserID)))
	if err != nil {
		return "", nil, err
	}
	if !user.IsA(entity.CapUser) {
		return "", nil, apperrors.WithMetadata(apperrors.CodeCapabilityMismatch, "devices belong to users", map[string]string{
			"id":   string(user.ID),
			"kind": string(user.Kind),
			"role": "user",
		})
	}
	if actor.ID != user.ID && !d.adminOf(user.ID) {
		return "", nil, unauthorized(actor.ID, "cannot register devices for another user")
	}
	p.DeviceID = strings.TrimSpace(p.DeviceID)
	if err := d.requireNewID(p.DeviceID, "device_id"); err != nil {
		return "", nil, err
	}
	p.UserID = string(user.ID)
	p.Label = strings.TrimSpace(p.Label)
	return p.DeviceID, p, nil
}

func (d decider) linkFundingSource() (string, any, error) {
	var p FundingSourceLinkPayload
	if err := d.decode(&p); err != nil {
		return "", nil, err
	}
	actor, err := d.actor()
	if err != nil {
		return "", nil, err
	}
	parent, err := d.g.Lookup(entity.ID(strings.TrimSpace(p.ParentID)))
	if err != nil {
		return "", nil, err
	}
	if parent.Kind != entity.KindParent {
		return "", nil, apperrors.WithMetadata(apperrors.CodeCapabilityMismatch, "only parents own funding sources", map[string]string{
			"id":   string(parent.ID),
			"kind": string(parent.Kind),
			"role": "owner",
		})
	}
	if actor.ID != parent.ID && !d.adminOf(parent.ID) {
		return "", nil, unauthorized(actor.ID, "cannot link funding sources for another parent")
	}
	p.FundingSourceID = strings.TrimSpace(p.FundingSourceID)
	if err := d.requireNewID(p.FundingSourceID, "funding_source_id"); err != nil {
		return "", nil, err
	}
	p.ParentID = string(parent.ID)
	p.Label = strings.TrimSpace(p.Label)
	return p.FundingSourceID, p, nil
}

func (d decider) registerRecipient() (string, any, error) {
	var p RecipientRegisterPayload
	if err := d.decode(&p); err != nil {
		return "", nil, err
	}
	if _, err := d.actor(); err != nil {
		return "", nil, err
	}
	p.RecipientID = strings.TrimSpace(p.RecipientID)
	if err := d.requireNewID(p.RecipientID, "recipient_id"); err != nil {
		return "", nil, err
	}
	p.Label = strings.TrimSpace(p.Label)
	if p.Label == "" {
		return "", nil, required("label")
	}
	return p.RecipientID, p, nil
}

func (d decider) createRule() (string, string, any, error) {
	var p RuleCreatePayload
	if err := d.decode(&p); err != nil {
		return "", "", nil, err
	}
	child, err := d.g.Lookup(entity.ID(strings.TrimSpace(p.ChildID)))
	if err != nil {
		return "", "", nil, err
	}
	if child.Kind != entity.KindChild {
		return "", "", nil, apperrors.WithMetadata(apperrors.CodeCapabilityMismatch, "rules target children", map[string]string{
			"id":   string(child.ID),
			"kind": string(child.Kind),
			"role": "target",
		})
	}
	family, ok := d.g.FamilyOf(child.ID)
	if !ok {
		return "", "", nil, apperrors.WithMetadata(apperrors.CodeDanglingReference, "child has no family", map[string]string{"id": string(child.ID), "role": "family"})
	}
	if err := d.requireAdmin(family); err != nil {
		return "", "", nil, err
	}
	kind := entity.Kind(strings.ToLower(strings.TrimSpace(p.Kind)))
	p.RuleID = strings.TrimSpace(p.RuleID)
	if err := d.requireNewID(p.RuleID, "rule_id"); err != nil {
		return "", "", nil, err
	}
	e, err := entity.New(entity.Spec{
		ID:        entity.ID(p.RuleID),
		Kind:      kind,
		Caps:      entity.CapIdentity | entity.CapFundingRule,
		CreatedAt: d.now,
		Rule: &entity.RuleTerms{
			Title:      p.Title,
			Recurrence: entity.Recurrence(strings.ToUpper(strings.TrimSpace(p.Recurrence))),
			Amount:     p.Amount,
			Purpose:    entity.Kind(strings.ToLower(strings.TrimSpace(p.Purpose))),
		},
	})
	if err != nil {
		return "", "", nil, err
	}
	p.Kind = string(e.Kind)
	p.ChildID = string(child.ID)
	p.Title = e.Rule.Title
	p.Recurrence = string(e.Rule.Recurrence)
	p.Purpose = string(e.Rule.Purpose)
	p.FamilyID = string(family)
	p.CreatorID = d.cmd.ActorID
	return p.Kind, p.RuleID, p, nil
}

func (d decider) recordTransaction() (string, string, any, error) {
	var p TransactionRecordPayload
	if err := d.decode(&p); err != nil {
		return "", "", nil, err
	}
	p.TransactionID = strings.TrimSpace(p.TransactionID)
	if err := d.requireNewID(p.TransactionID, "transaction_id"); err != nil {
		return "", "", nil, err
	}
	draft := invariant.Draft{
		ID:            entity.ID(p.TransactionID),
		Kind:          entity.Kind(strings.ToLower(strings.TrimSpace(p.Kind))),
		Amount:        p.Amount,
		SourceID:      entity.ID(strings.TrimSpace(p.SourceID)),
		DestinationID: entity.ID(strings.TrimSpace(p.DestinationID)),
		InitiatorID:   entity.ID(d.cmd.ActorID),
		RuleID:        entity.ID(strings.TrimSpace(p.RuleID)),
		Timestamp:     d.now,
	}
	if err := (invariant.Engine{}).CheckTransaction(d.g, draft); err != nil {
		return "", "", nil, err
	}
	p.Kind = string(draft.Kind)
	p.SourceID = string(draft.SourceID)
	p.DestinationID = string(draft.DestinationID)
	p.RuleID = string(draft.RuleID)
	p.InitiatorID = string(draft.InitiatorID)
	p.Description = strings.TrimSpace(p.Description)
	return p.Kind, p.TransactionID, p, nil
}

func (d decider) removeEntity() (string, string, any, error) {
	var p EntityRemovePayload
	if err := d.decode(&p); err != nil {
		return "", "", nil, err
	}
	actor, err := d.actor()
	if err != nil {
		return "", "", nil, err
	}
	target, err := d.g.Lookup(entity.ID(strings.TrimSpace(p.EntityID)))
	if err != nil {
		return "", "", nil, err
	}
	cascade, err := (invariant.Engine{}).CheckRemoval(d.g, target.ID)
	if err != nil {
		return "", "", nil, err
	}
	if !d.mayRemove(actor, target) {
		return "", "", nil, unauthorized(actor.ID, "cannot remove "+string(target.Kind))
	}
	p.EntityID = string(target.ID)
	p.Cascade = make([]string, 0, len(cascade))
	for _, id := range cascade {
		p.Cascade = append(p.Cascade, string(id))
	}
	return string(target.Kind), p.EntityID, p, nil
}

// mayRemove lets users remove themselves and what they own; admins remove
// anything in their family. Recipients are shared and any admin may retire
// one.
func (d decider) mayRemove(actor, target entity.Entity) bool {
	if actor.ID == target.ID || d.adminOf(target.ID) {
		return true
	}
	switch target.Kind {
	case entity.KindDevice:
		user, _, _ := d.g.First(target.ID, graph.RelUser)
		return user == actor.ID
	case entity.KindExternalFunding:
		owner, _, _ := d.g.First(target.ID, graph.RelOwner)
		return owner == actor.ID
	case entity.KindPaymentRecipient:
		return actor.IsA(entity.CapFamilyAdmin)
	}
	return false
}

func (d decider) actor() (entity.Entity, error) {
	id := entity.ID(d.cmd.ActorID)
	actor, err := d.g.Lookup(id)
	if err != nil || !actor.IsA(entity.CapUser) {
		return entity.Entity{}, unauthorized(id, "actor is not a known user")
	}
	return actor, nil
}

func (d decider) requireAdmin(familyID entity.ID) error {
	actor, err := d.actor()
	if err != nil {
		return err
	}
	if !d.g.IsAdmin(familyID, actor.ID) {
		return unauthorized(actor.ID, "actor is not an admin of family "+string(familyID))
	}
	return nil
}

// adminOf reports whether the actor administers the family id belongs to.
func (d decider) adminOf(id entity.ID) bool {
	family, ok := d.g.FamilyOf(id)
	return ok && d.g.IsAdmin(family, entity.ID(d.cmd.ActorID))
}

// requireSingleFamily keeps parents in at most one family. Institutions
// may administer several.
func (d decider) requireSingleFamily(user entity.Entity) error {
	if user.Kind != entity.KindParent {
		return nil
	}
	if family, ok := d.g.FamilyOf(user.ID); ok {
		return apperrors.WithMetadata(apperrors.CodeSchemaViolation, "parent already belongs to family "+string(family), map[string]string{"kind": string(user.Kind)})
	}
	return nil
}

func (d decider) family(raw string) (entity.Entity, error) {
	family, err := d.g.Lookup(entity.ID(strings.TrimSpace(raw)))
	if err != nil {
		return entity.Entity{}, err
	}
	if family.Kind != entity.KindFamily {
		return entity.Entity{}, apperrors.WithMetadata(apperrors.CodeNotFound, "family not found", map[string]string{"id": raw})
	}
	return family, nil
}

func (d decider) requireNewID(id, field string) error {
	if id == "" {
		return required(field)
	}
	if d.g.Exists(entity.ID(id)) {
		return apperrors.WithMetadata(apperrors.CodeIdentityConflict, "identifier already in use", map[string]string{"id": id})
	}
	return nil
}

func distinct(ids ...string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return apperrors.WithMetadata(apperrors.CodeIdentityConflict, "identifier repeated in command", map[string]string{"id": id})
		}
		seen[id] = struct{}{}
	}
	return nil
}

func required(field string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidArgument, field+" is required", map[string]string{"field": field})
}

func unauthorized(actorID entity.ID, message string) error {
	return apperrors.WithMetadata(apperrors.CodeUnauthorizedActor, message, map[string]string{"actor_id": string(actorID)})
}

func newUser(id string, kind entity.Kind, name string, addr *AddressPayload, roles []string, at time.Time) (entity.Entity, error) {
	profile := entity.UserProfile{UserName: name}
	if addr != nil {
		profile.Address = &entity.Address{Street: addr.Street, City: addr.City, PostalCode: addr.PostalCode}
	}
	for _, role := range roles {
		profile.Roles = append(profile.Roles, entity.Role(strings.ToUpper(strings.TrimSpace(role))))
	}
	return entity.New(entity.Spec{ID: entity.ID(id), Kind: kind, CreatedAt: at, User: &profile})
}

func rolesOf(roles []entity.Role) []string {
	if len(roles) == 0 {
		return nil
	}
	out := make([]string, len(roles))
	for i, role := range roles {
		out[i] = string(role)
	}
	return out
}

// EventEntityID is a convenience for callers that need the primary entity of
// an accepted decision.
func EventEntityID(d command.Decision) string {
	if len(d.Events) == 0 {
		return ""
	}
	return d.Events[0].EntityID
}
