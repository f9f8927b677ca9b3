package invariant

import (
	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
)

// Requirement is the capability each endpoint of a transaction kind needs.
type Requirement struct {
	Source      entity.Capability
	Destination entity.Capability
	Initiator   entity.Capability
}

var requirements = map[entity.Kind]Requirement{
	entity.KindExternalFundingTransfer: {
		Source:      entity.CapSource | entity.CapExternal,
		Destination: entity.CapDestination | entity.CapPooled,
		Initiator:   entity.CapFamilyAdmin,
	},
	entity.KindFundTransfer: {
		Source:      entity.CapSource | entity.CapFundingAccount | entity.CapLedger,
		Destination: entity.CapDestination | entity.CapFundingAccount | entity.CapLedger,
		Initiator:   entity.CapFamilyAdmin,
	},
	entity.KindFundDistribution: {
		Source:      entity.CapSource | entity.CapPooled,
		Destination: entity.CapDestination | entity.CapSubAccount,
		Initiator:   entity.CapFamilyAdmin,
	},
	entity.KindExternalPayment: {
		Source:      entity.CapSource | entity.CapSubAccount,
		Destination: entity.CapDestination | entity.CapRecipient,
		Initiator:   entity.CapInitiator,
	},
	entity.KindSubAccountTransfer: {
		Source:      entity.CapSource | entity.CapSubAccount,
		Destination: entity.CapDestination | entity.CapSubAccount,
		Initiator:   entity.CapInitiator,
	},
	entity.KindFundingRequest: {
		Source:      entity.CapSource | entity.CapPooled,
		Destination: entity.CapDestination | entity.CapSubAccount,
		Initiator:   entity.CapInitiator,
	},
}

// RequirementFor returns the endpoint requirement of a transaction kind.
func RequirementFor(kind entity.Kind) (Requirement, bool) {
	req, ok := requirements[kind]
	return req, ok
}
