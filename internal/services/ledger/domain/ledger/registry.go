package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/famledger/internal/services/ledger/domain/command"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/event"
)

const (
	CommandTypeInstitutionRegister command.Type = "institution.register"
	CommandTypeParentRegister      command.Type = "parent.register"
	CommandTypeFamilyCreate        command.Type = "family.create"
	CommandTypeFamilyAdminAdd      command.Type = "family.admin.add"
	CommandTypeChildAdd            command.Type = "child.add"
	CommandTypeDeviceRegister      command.Type = "device.register"
	CommandTypeFundingSourceLink   command.Type = "funding_source.link"
	CommandTypeRecipientRegister   command.Type = "recipient.register"
	CommandTypeRuleCreate          command.Type = "rule.create"
	CommandTypeTransactionRecord   command.Type = "transaction.record"
	CommandTypeEntityRemove        command.Type = "entity.remove"
)

// eventFor maps every command type to the event it emits.
var eventFor = map[command.Type]event.Type{
	CommandTypeInstitutionRegister: event.TypeInstitutionRegistered,
	CommandTypeParentRegister:      event.TypeParentRegistered,
	CommandTypeFamilyCreate:        event.TypeFamilyCreated,
	CommandTypeFamilyAdminAdd:      event.TypeFamilyAdminAdded,
	CommandTypeChildAdd:            event.TypeChildAdded,
	CommandTypeDeviceRegister:      event.TypeDeviceRegistered,
	CommandTypeFundingSourceLink:   event.TypeFundingSourceLinked,
	CommandTypeRecipientRegister:   event.TypeRecipientRegistered,
	CommandTypeRuleCreate:          event.TypeRuleCreated,
	CommandTypeTransactionRecord:   event.TypeTransactionRecorded,
	CommandTypeEntityRemove:        event.TypeEntityRemoved,
}

// NewRegistry returns a registry with every ledger command.
func NewRegistry() *command.Registry {
	registry := command.NewRegistry()
	defs := []command.Definition{
		{Type: CommandTypeInstitutionRegister, ValidatePayload: decodes[UserRegisterPayload]},
		{Type: CommandTypeParentRegister, ValidatePayload: decodes[UserRegisterPayload]},
		{Type: CommandTypeFamilyCreate, ActorRequired: true, ValidatePayload: decodes[FamilyCreatePayload]},
		{Type: CommandTypeFamilyAdminAdd, ActorRequired: true, ValidatePayload: decodes[AdminAddPayload]},
		{Type: CommandTypeChildAdd, ActorRequired: true, ValidatePayload: decodes[ChildAddPayload]},
		{Type: CommandTypeDeviceRegister, ActorRequired: true, ValidatePayload: decodes[DeviceRegisterPayload]},
		{Type: CommandTypeFundingSourceLink, ActorRequired: true, ValidatePayload: decodes[FundingSourceLinkPayload]},
		{Type: CommandTypeRecipientRegister, ActorRequired: true, ValidatePayload: decodes[RecipientRegisterPayload]},
		{Type: CommandTypeRuleCreate, ActorRequired: true, ValidatePayload: decodes[RuleCreatePayload]},
		{Type: CommandTypeTransactionRecord, ActorRequired: true, ValidatePayload: decodes[TransactionRecordPayload]},
		{Type: CommandTypeEntityRemove, ActorRequired: true, ValidatePayload: decodes[EntityRemovePayload]},
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			panic(fmt.Sprintf("register %s: %v", def.Type, err))
		}
	}
	return registry
}

func decodes[T any](raw json.RawMessage) error {
	var payload T
	return json.Unmarshal(raw, &payload)
}
