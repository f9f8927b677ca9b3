package entity

// ID is an opaque, stable entity identifier.
type ID string

// Kind names a concrete entity variant.
type Kind string

// Users.
const (
	KindInstitution Kind = "institution"
	KindParent      Kind = "parent"
	KindChild       Kind = "child"
)

// Households and reference entities.
const (
	KindFamily           Kind = "family"
	KindDevice           Kind = "device"
	KindPaymentRecipient Kind = "payment_recipient"
)

// Accounts.
const (
	KindWallet          Kind = "wallet"
	KindSpend           Kind = "spend"
	KindSave            Kind = "save"
	KindGive            Kind = "give"
	KindEarn            Kind = "earn"
	KindInvest          Kind = "invest"
	KindChildAccount    Kind = "child_account"
	KindExternalFunding Kind = "external_funding"
)

// Funding rules.
const (
	KindChore     Kind = "chore"
	KindAllowance Kind = "allowance"
)

// Transactions.
const (
	KindFundTransfer            Kind = "fund_transfer"
	KindFundDistribution        Kind = "fund_distribution"
	KindExternalPayment         Kind = "external_payment"
	KindSubAccountTransfer      Kind = "sub_account_transfer"
	KindFundingRequest          Kind = "funding_request"
	KindExternalFundingTransfer Kind = "external_funding_transfer"
)

// SubAccountKinds lists the purpose accounts every child owns, in the order
// they are created.
var SubAccountKinds = []Kind{KindSpend, KindSave, KindGive, KindEarn, KindInvest}

// TransactionKinds lists every transaction variant.
var TransactionKinds = []Kind{
	KindFundTransfer,
	KindFundDistribution,
	KindExternalPayment,
	KindSubAccountTransfer,
	KindFundingRequest,
	KindExternalFundingTransfer,
}

// RuleKinds lists every funding rule variant.
var RuleKinds = []Kind{KindChore, KindAllowance}

// Valid reports whether k belongs to the catalog.
func (k Kind) Valid() bool {
	_, ok := catalog[k]
	return ok
}

// ParsePurpose validates a sub-account purpose label.
func ParsePurpose(value string) (Kind, bool) {
	k := Kind(value)
	for _, sub := range SubAccountKinds {
		if k == sub {
			return k, true
		}
	}
	return "", false
}

// Kinds returns the full catalog in declaration order.
func Kinds() []Kind {
	return append([]Kind(nil), catalogOrder...)
}

// LegacyNames maps names from the earlier Partner/Group/CardHolder schema
// revision to the canonical kinds. Renames are documentation only; the
// earlier shapes are not served.
var LegacyNames = map[string]Kind{
	"Partner":             KindInstitution,
	"Group":               KindFamily,
	"CardHolder":          KindChild,
	"Owner":               KindParent,
	"Approver":            KindParent,
	"Funder":              KindParent,
	"FundingAccount":      KindExternalFunding,
	"SpendRule":           KindSpend,
	"SaveRule":            KindSave,
	"GiveRule":            KindGive,
	"Payout":              KindFundDistribution,
	"ExternalTransaction": KindExternalPayment,
	"InternalTransaction": KindSubAccountTransfer,
}
