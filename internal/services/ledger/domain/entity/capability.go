package entity

import "strings"

// Capability is a set of interface contracts an entity satisfies.
type Capability uint32

const (
	CapIdentity Capability = 1 << iota
	CapUser
	CapFamilyAdmin
	CapInitiator
	CapAccount
	// CapLedger marks accounts whose balance is tracked and must never go
	// negative. External accounts carry a derived net flow instead.
	CapLedger
	CapSource
	CapDestination
	CapFundingAccount
	// CapPooled marks wallet-class accounts that fund children.
	CapPooled
	CapSubAccount
	CapExternal
	CapRecipient
	CapFundingRule
	CapTransaction
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CapIdentity, "identity"},
	{CapUser, "user"},
	{CapFamilyAdmin, "family_admin"},
	{CapInitiator, "initiator"},
	{CapAccount, "account"},
	{CapLedger, "ledger"},
	{CapSource, "transaction_source"},
	{CapDestination, "transaction_destination"},
	{CapFundingAccount, "funding_account"},
	{CapPooled, "pooled"},
	{CapSubAccount, "sub_account"},
	{CapExternal, "external"},
	{CapRecipient, "recipient"},
	{CapFundingRule, "funding_rule"},
	{CapTransaction, "transaction"},
}

// Has reports whether every flag in want is set.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	for _, entry := range capabilityNames {
		if c&entry.cap != 0 {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, "|")
}

const (
	userCaps    = CapIdentity | CapUser | CapInitiator
	adminCaps   = userCaps | CapFamilyAdmin
	subAcctCaps = CapIdentity | CapAccount | CapLedger | CapSource | CapDestination | CapSubAccount
)

var catalog = map[Kind]Capability{
	KindInstitution: adminCaps,
	KindParent:      adminCaps,
	KindChild:       userCaps,

	KindFamily:           CapIdentity,
	KindDevice:           CapIdentity,
	KindPaymentRecipient: CapIdentity | CapDestination | CapRecipient,

	KindWallet:          CapIdentity | CapAccount | CapLedger | CapSource | CapDestination | CapFundingAccount | CapPooled,
	KindSpend:           subAcctCaps | CapFundingAccount,
	KindSave:            subAcctCaps,
	KindGive:            subAcctCaps,
	KindEarn:            subAcctCaps,
	KindInvest:          subAcctCaps,
	KindChildAccount:    CapIdentity | CapAccount,
	KindExternalFunding: CapIdentity | CapAccount | CapSource | CapFundingAccount | CapExternal,

	KindChore:     CapIdentity | CapFundingRule,
	KindAllowance: CapIdentity | CapFundingRule,

	KindFundTransfer:            CapIdentity | CapTransaction,
	KindFundDistribution:        CapIdentity | CapTransaction,
	KindExternalPayment:         CapIdentity | CapTransaction,
	KindSubAccountTransfer:      CapIdentity | CapTransaction,
	KindFundingRequest:          CapIdentity | CapTransaction,
	KindExternalFundingTransfer: CapIdentity | CapTransaction,
}

var catalogOrder = []Kind{
	KindInstitution, KindParent, KindChild,
	KindFamily, KindDevice, KindPaymentRecipient,
	KindWallet, KindSpend, KindSave, KindGive, KindEarn, KindInvest, KindChildAccount, KindExternalFunding,
	KindChore, KindAllowance,
	KindFundTransfer, KindFundDistribution, KindExternalPayment, KindSubAccountTransfer, KindFundingRequest, KindExternalFundingTransfer,
}

// Capabilities returns the declared capability set of kind.
func Capabilities(kind Kind) (Capability, bool) {
	caps, ok := catalog[kind]
	return caps, ok
}

// IsA reports whether the entity's variant declares capability.
func IsA(e Entity, capability Capability) bool {
	return e.Caps.Has(capability)
}
