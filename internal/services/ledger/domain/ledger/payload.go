package ledger

// AddressPayload is a postal address.
type AddressPayload struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// UserRegisterPayload captures institution.register and parent.register
// commands and their events.
type UserRegisterPayload struct {
	UserID   string          `json:"user_id"`
	UserName string          `json:"user_name"`
	Address  *AddressPayload `json:"address,omitempty"`
	Roles    []string        `json:"roles,omitempty"`
}

// FamilyCreatePayload captures family.create commands and family.created
// events. The actor becomes the first admin.
type FamilyCreatePayload struct {
	FamilyID    string `json:"family_id"`
	WalletID    string `json:"wallet_id"`
	Label       string `json:"label"`
	WalletLabel string `json:"wallet_label,omitempty"`
	AdminID     string `json:"admin_id,omitempty"`
}

// AdminAddPayload captures family.admin.add commands and family.admin_added
// events.
type AdminAddPayload struct {
	FamilyID string `json:"family_id"`
	AdminID  string `json:"admin_id"`
}

// ChildAddPayload captures child.add commands and child.added events.
// SubAccounts maps each purpose to the id of its sub-account.
type ChildAddPayload struct {
	FamilyID    string            `json:"family_id"`
	ChildID     string            `json:"child_id"`
	AccountID   string            `json:"account_id"`
	SubAccounts map[string]string `json:"sub_accounts"`
	UserName    string            `json:"user_name"`
	Address     *AddressPayload   `json:"address,omitempty"`
}

// DeviceRegisterPayload captures device.register commands and
// device.registered events.
type DeviceRegisterPayload struct {
	DeviceID string `json:"device_id"`
	UserID   string `json:"user_id"`
	Label    string `json:"label,omitempty"`
}

// FundingSourceLinkPayload captures funding_source.link commands and
// funding_source.linked events.
type FundingSourceLinkPayload struct {
	FundingSourceID string `json:"funding_source_id"`
	ParentID        string `json:"parent_id"`
	Label           string `json:"label,omitempty"`
}

// RecipientRegisterPayload captures recipient.register commands and
// recipient.registered events.
type RecipientRegisterPayload struct {
	RecipientID string `json:"recipient_id"`
	Label       string `json:"label"`
}

// RuleCreatePayload captures rule.create commands and rule.created events.
type RuleCreatePayload struct {
	RuleID     string `json:"rule_id"`
	Kind       string `json:"kind"`
	ChildID    string `json:"child_id"`
	Title      string `json:"title,omitempty"`
	Recurrence string `json:"recurrence"`
	Amount     int64  `json:"amount"`
	Purpose    string `json:"purpose"`
	FamilyID   string `json:"family_id,omitempty"`
	CreatorID  string `json:"creator_id,omitempty"`
}

// TransactionRecordPayload captures transaction.record commands and
// transaction.recorded events. The actor is the initiator.
type TransactionRecordPayload struct {
	TransactionID string `json:"transaction_id"`
	Kind          string `json:"kind"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description,omitempty"`
	SourceID      string `json:"source_id"`
	DestinationID string `json:"destination_id"`
	RuleID        string `json:"rule_id,omitempty"`
	InitiatorID   string `json:"initiator_id,omitempty"`
}

// EntityRemovePayload captures entity.remove commands and entity.removed
// events. Cascade lists every entity the removal takes, in removal order.
type EntityRemovePayload struct {
	EntityID string   `json:"entity_id"`
	Cascade  []string `json:"cascade,omitempty"`
}
