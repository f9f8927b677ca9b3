package graphql

import (
	"context"
	"strings"

	gql "github.com/graphql-go/graphql"
	"github.com/shopspring/decimal"

	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/graph"
	"github.com/louisbranch/famledger/internal/services/ledger/resolve"
	"github.com/louisbranch/famledger/internal/services/ledger/schedule"
)

// minorUnits is the number of decimal places amounts are stored in.
const minorUnits = 2

var objectNames = map[entity.Kind]string{
	entity.KindInstitution:             "Institution",
	entity.KindParent:                  "Parent",
	entity.KindChild:                   "Child",
	entity.KindFamily:                  "Family",
	entity.KindDevice:                  "Device",
	entity.KindPaymentRecipient:        "PaymentRecipient",
	entity.KindWallet:                  "Wallet",
	entity.KindSpend:                   "SpendAccount",
	entity.KindSave:                    "SaveAccount",
	entity.KindGive:                    "GiveAccount",
	entity.KindEarn:                    "EarnAccount",
	entity.KindInvest:                  "InvestAccount",
	entity.KindChildAccount:            "ChildAccount",
	entity.KindExternalFunding:         "ExternalFundingAccount",
	entity.KindChore:                   "Chore",
	entity.KindAllowance:               "Allowance",
	entity.KindFundTransfer:            "FundTransfer",
	entity.KindFundDistribution:        "FundDistribution",
	entity.KindExternalPayment:         "ExternalPayment",
	entity.KindSubAccountTransfer:      "SubAccountTransfer",
	entity.KindFundingRequest:          "FundingRequest",
	entity.KindExternalFundingTransfer: "ExternalFundingTransfer",
}

// node is an entity bound to the snapshot it was read from.
type node struct {
	entity.Entity
	r *resolve.Resolver
}

func one(r *resolve.Resolver, e entity.Entity, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return node{Entity: e, r: r}, nil
}

func many(r *resolve.Resolver, entities []entity.Entity, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	out := make([]node, 0, len(entities))
	for _, e := range entities {
		out = append(out, node{Entity: e, r: r})
	}
	return out, nil
}

// onNode adapts a resolver over a bound entity. Absence resolves to null.
func onNode(fn func(ctx context.Context, n node) (any, error)) gql.FieldResolveFn {
	return func(p gql.ResolveParams) (any, error) {
		n, ok := p.Source.(node)
		if !ok {
			return nil, nil
		}
		v, err := fn(p.Context, n)
		if err != nil {
			return absentOr(p.Context, err)
		}
		return v, nil
	}
}

func formatMinor(amount int64) string {
	return decimal.New(amount, -minorUnits).StringFixed(minorUnits)
}

func enumName(value string) string {
	return strings.ToUpper(value)
}

func merge(sets ...gql.Fields) gql.Fields {
	out := gql.Fields{}
	for _, set := range sets {
		for name, field := range set {
			out[name] = field
		}
	}
	return out
}

func list(t gql.Type) gql.Output {
	return gql.NewNonNull(gql.NewList(gql.NewNonNull(t)))
}

type builder struct {
	svc Service

	nodeIface        *gql.Interface
	userIface        *gql.Interface
	adminIface       *gql.Interface
	accountIface     *gql.Interface
	fundingIface     *gql.Interface
	sourceIface      *gql.Interface
	destinationIface *gql.Interface
	ruleIface        *gql.Interface
	transactionIface *gql.Interface
	initiator        *gql.Union

	objects map[entity.Kind]*gql.Object

	address        *gql.Object
	ledgerPage     *gql.Object
	skippedRule    *gql.Object
	scheduleReport *gql.Object

	role            *gql.Enum
	recurrence      *gql.Enum
	purpose         *gql.Enum
	transactionKind *gql.Enum
	ruleKind        *gql.Enum
}

func newBuilder(svc Service) *builder {
	b := &builder{svc: svc, objects: make(map[entity.Kind]*gql.Object, len(objectNames))}
	b.enums()
	b.address = gql.NewObject(gql.ObjectConfig{
		Name: "Address",
		Fields: gql.Fields{
			"street":     {Type: gql.String, Resolve: addressField(func(a *entity.Address) string { return a.Street })},
			"city":       {Type: gql.String, Resolve: addressField(func(a *entity.Address) string { return a.City })},
			"postalCode": {Type: gql.String, Resolve: addressField(func(a *entity.Address) string { return a.PostalCode })},
		},
	})
	b.interfaces()
	for _, kind := range entity.Kinds() {
		b.objects[kind] = b.object(kind)
	}
	b.initiator = gql.NewUnion(gql.UnionConfig{
		Name:        "Initiator",
		Description: "The user who initiated a transaction.",
		Types: []*gql.Object{
			b.objects[entity.KindInstitution],
			b.objects[entity.KindParent],
			b.objects[entity.KindChild],
		},
		ResolveType: b.resolveType,
	})
	b.pages()
	return b
}

func addressField(get func(*entity.Address) string) gql.FieldResolveFn {
	return func(p gql.ResolveParams) (any, error) {
		a, ok := p.Source.(*entity.Address)
		if !ok || a == nil {
			return nil, nil
		}
		return get(a), nil
	}
}

func (b *builder) enums() {
	roles := gql.EnumValueConfigMap{}
	for _, role := range []entity.Role{entity.RoleOwner, entity.RoleFunder, entity.RoleApprover} {
		roles[string(role)] = &gql.EnumValueConfig{Value: role}
	}
	b.role = gql.NewEnum(gql.EnumConfig{Name: "Role", Values: roles})

	recurrences := gql.EnumValueConfigMap{}
	for _, r := range []entity.Recurrence{entity.RecurrenceOneTime, entity.RecurrenceWeekly, entity.RecurrenceMonthly} {
		recurrences[string(r)] = &gql.EnumValueConfig{Value: r}
	}
	b.recurrence = gql.NewEnum(gql.EnumConfig{Name: "Recurrence", Values: recurrences})

	b.purpose = kindEnum("AccountPurpose", entity.SubAccountKinds)
	b.transactionKind = kindEnum("TransactionKind", entity.TransactionKinds)
	b.ruleKind = kindEnum("FundingRuleKind", entity.RuleKinds)
}

func kindEnum(name string, kinds []entity.Kind) *gql.Enum {
	values := gql.EnumValueConfigMap{}
	for _, kind := range kinds {
		values[enumName(string(kind))] = &gql.EnumValueConfig{Value: kind}
	}
	return gql.NewEnum(gql.EnumConfig{Name: name, Values: values})
}

func (b *builder) resolveType(p gql.ResolveTypeParams) *gql.Object {
	n, ok := p.Value.(node)
	if !ok {
		return nil
	}
	return b.objects[n.Kind]
}

func (b *builder) iface(name, description string, fields func() gql.Fields) *gql.Interface {
	return gql.NewInterface(gql.InterfaceConfig{
		Name:        name,
		Description: description,
		Fields:      gql.FieldsThunk(fields),
		ResolveType: b.resolveType,
	})
}

func (b *builder) interfaces() {
	b.nodeIface = b.iface("Node", "An entity with a stable identity.", b.nodeFields)
	b.userIface = b.iface("User", "A person or institution using the ledger.", func() gql.Fields {
		return merge(b.nodeFields(), b.userFields())
	})
	b.adminIface = b.iface("FamilyAdmin", "A user allowed to manage a family.", func() gql.Fields {
		return merge(b.nodeFields(), b.userFields(), b.adminFields())
	})
	accountFields := func() gql.Fields {
		return merge(b.nodeFields(), b.endpointFields(), b.accountFields())
	}
	b.accountIface = b.iface("Account", "An account with a balance.", accountFields)
	b.fundingIface = b.iface("FundingAccount", "An account that can fund a family.", accountFields)
	b.sourceIface = b.iface("TransactionSource", "Anything money can leave.", func() gql.Fields {
		return merge(b.nodeFields(), b.endpointFields())
	})
	b.destinationIface = b.iface("TransactionDestination", "Anything money can reach.", func() gql.Fields {
		return merge(b.nodeFields(), b.endpointFields())
	})
	b.ruleIface = b.iface("FundingRule", "A recurring or one-time payout into a child's sub-account.", func() gql.Fields {
		return merge(b.nodeFields(), b.ruleFields())
	})
	b.transactionIface = b.iface("Transaction", "A recorded movement of money.", func() gql.Fields {
		return merge(b.nodeFields(), b.transactionFields())
	})
}

// object builds the concrete type for kind. Its interfaces and fields
// follow the kind's capability flags.
func (b *builder) object(kind entity.Kind) *gql.Object {
	caps, _ := entity.Capabilities(kind)
	var ifaces []*gql.Interface
	add := func(want entity.Capability, iface *gql.Interface) {
		if caps.Has(want) {
			ifaces = append(ifaces, iface)
		}
	}
	add(entity.CapIdentity, b.nodeIface)
	add(entity.CapUser, b.userIface)
	add(entity.CapFamilyAdmin, b.adminIface)
	add(entity.CapAccount, b.accountIface)
	add(entity.CapFundingAccount, b.fundingIface)
	add(entity.CapSource, b.sourceIface)
	add(entity.CapDestination, b.destinationIface)
	add(entity.CapFundingRule, b.ruleIface)
	add(entity.CapTransaction, b.transactionIface)

	return gql.NewObject(gql.ObjectConfig{
		Name:       objectNames[kind],
		Interfaces: ifaces,
		Fields: gql.FieldsThunk(func() gql.Fields {
			fields := b.nodeFields()
			if caps.Has(entity.CapUser) {
				fields = merge(fields, b.userFields())
			}
			if caps.Has(entity.CapFamilyAdmin) {
				fields = merge(fields, b.adminFields())
			}
			if caps&(entity.CapAccount|entity.CapSource|entity.CapDestination) != 0 {
				fields = merge(fields, b.endpointFields())
			}
			if caps.Has(entity.CapAccount) {
				fields = merge(fields, b.accountFields())
			}
			if caps.Has(entity.CapFundingRule) {
				fields = merge(fields, b.ruleFields())
			}
			if caps.Has(entity.CapTransaction) {
				fields = merge(fields, b.transactionFields())
			}
			return merge(fields, b.kindFields(kind))
		}),
	})
}

func (b *builder) nodeFields() gql.Fields {
	return gql.Fields{
		"id": {Type: gql.NewNonNull(gql.ID), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return string(n.ID), nil
		})},
		"kind": {Type: gql.NewNonNull(gql.String), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return string(n.Kind), nil
		})},
		"createdAt": {Type: gql.NewNonNull(gql.DateTime), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return n.CreatedAt, nil
		})},
		"updatedAt": {Type: gql.NewNonNull(gql.DateTime), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return n.UpdatedAt, nil
		})},
		"removed": {Type: gql.NewNonNull(gql.Boolean), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return n.Removed, nil
		})},
	}
}

func (b *builder) userFields() gql.Fields {
	return gql.Fields{
		"userName": {Type: gql.NewNonNull(gql.String), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return n.DisplayName(), nil
		})},
		"address": {Type: b.address, Resolve: onNode(func(_ context.Context, n node) (any, error) {
			if n.User == nil || n.User.Address == nil {
				return nil, nil
			}
			return n.User.Address, nil
		})},
		"devices": {Type: list(b.objects[entity.KindDevice]), Resolve: onNode(func(ctx context.Context, n node) (any, error) {
			devices, err := n.r.Devices(ctx, n.ID)
			return many(n.r, devices, err)
		})},
		"families": {Type: list(b.objects[entity.KindFamily]), Resolve: onNode(func(ctx context.Context, n node) (any, error) {
			families, err := n.r.Families(ctx, n.ID)
			return many(n.r, families, err)
		})},
	}
}

func (b *builder) adminFields() gql.Fields {
	return gql.Fields{
		"roles": {Type: list(b.role), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			if n.User == nil {
				return []entity.Role{}, nil
			}
			return n.User.Roles, nil
		})},
		"fundingAccounts": {Type: list(b.fundingIface), Resolve: onNode(func(ctx context.Context, n node) (any, error) {
			accounts, err := n.r.Accounts(ctx, n.ID)
			return many(n.r, accounts, err)
		})},
	}
}

func (b *builder) endpointFields() gql.Fields {
	return gql.Fields{
		"label": {Type: gql.NewNonNull(gql.String), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return n.Label, nil
		})},
	}
}

func (b *builder) accountFields() gql.Fields {
	return gql.Fields{
		"balance": {Type: gql.NewNonNull(gql.Int), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return n.r.Balance(n.ID)
		})},
		"formattedBalance": {Type: gql.NewNonNull(gql.String), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			balance, err := n.r.Balance(n.ID)
			if err != nil {
				return nil, err
			}
			return formatMinor(balance), nil
		})},
		"owner": {Type: b.nodeIface, Resolve: onNode(func(_ context.Context, n node) (any, error) {
			owner, err := n.r.Owner(n.ID)
			return one(n.r, owner, err)
		})},
		"transactions": {Type: list(b.transactionIface), Resolve: onNode(func(ctx context.Context, n node) (any, error) {
			txs, err := n.r.Transactions(ctx, n.ID)
			return many(n.r, txs, err)
		})},
		"rules": {Type: list(b.ruleIface), Resolve: onNode(func(ctx context.Context, n node) (any, error) {
			rules, err := n.r.RulesFor(ctx, n.ID)
			return many(n.r, rules, err)
		})},
	}
}

func (b *builder) ruleFields() gql.Fields {
	terms := func(n node) entity.RuleTerms {
		if n.Rule == nil {
			return entity.RuleTerms{}
		}
		return *n.Rule
	}
	return gql.Fields{
		"title": {Type: gql.String, Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return terms(n).Title, nil
		})},
		"recurrence": {Type: gql.NewNonNull(b.recurrence), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return terms(n).Recurrence, nil
		})},
		"amount": {Type: gql.NewNonNull(gql.Int), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return terms(n).Amount, nil
		})},
		"formattedAmount": {Type: gql.NewNonNull(gql.String), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return formatMinor(terms(n).Amount), nil
		})},
		"purpose": {Type: gql.NewNonNull(b.purpose), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return terms(n).Purpose, nil
		})},
		"child": {Type: b.objects[entity.KindChild], Resolve: onNode(func(_ context.Context, n node) (any, error) {
			child, err := n.r.One(n.ID, graph.RelTarget)
			return one(n.r, child, err)
		})},
		"creator": {Type: b.userIface, Resolve: onNode(func(_ context.Context, n node) (any, error) {
			creator, err := n.r.One(n.ID, graph.RelCreator)
			return one(n.r, creator, err)
		})},
		"family": {Type: b.objects[entity.KindFamily], Resolve: onNode(func(_ context.Context, n node) (any, error) {
			family, err := n.r.FamilyOf(n.ID)
			return one(n.r, family, err)
		})},
		"distributions": {Type: list(b.objects[entity.KindFundDistribution]), Resolve: onNode(func(ctx context.Context, n node) (any, error) {
			paid, err := n.r.Distributions(ctx, n.ID)
			return many(n.r, paid, err)
		})},
		"nextDueAt": {Type: gql.DateTime, Resolve: onNode(func(ctx context.Context, n node) (any, error) {
			paid, err := n.r.Distributions(ctx, n.ID)
			if err != nil {
				return nil, err
			}
			due, ok := schedule.DueAt(terms(n), n.CreatedAt, len(paid))
			if !ok {
				return nil, nil
			}
			return due, nil
		})},
	}
}

func (b *builder) transactionFields() gql.Fields {
	record := func(n node) entity.TransactionRecord {
		if n.Transaction == nil {
			return entity.TransactionRecord{}
		}
		return *n.Transaction
	}
	return gql.Fields{
		"sequence": {Type: gql.NewNonNull(gql.Int), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return n.Seq, nil
		})},
		"amount": {Type: gql.NewNonNull(gql.Int), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return record(n).Amount, nil
		})},
		"formattedAmount": {Type: gql.NewNonNull(gql.String), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return formatMinor(record(n).Amount), nil
		})},
		"description": {Type: gql.NewNonNull(gql.String), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return record(n).Description, nil
		})},
		"timestamp": {Type: gql.NewNonNull(gql.DateTime), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			return n.CreatedAt, nil
		})},
		"source": {Type: gql.NewNonNull(b.sourceIface), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			source, err := n.r.Endpoint(n.ID, graph.RelSource)
			return one(n.r, source, err)
		})},
		"destination": {Type: gql.NewNonNull(b.destinationIface), Resolve: onNode(func(_ context.Context, n node) (any, error) {
			destination, err := n.r.Endpoint(n.ID, graph.RelDestination)
			return one(n.r, destination, err)
		})},
		"initiator": {Type: b.initiator, Resolve: onNode(func(_ context.Context, n node) (any, error) {
			initiator, err := n.r.Initiator(n.ID)
			return one(n.r, initiator, err)
		})},
	}
}

// kindFields are the fields only one concrete variant carries.
func (b *builder) kindFields(kind entity.Kind) gql.Fields {
	switch {
	case kind == entity.KindChild:
		return gql.Fields{
			"account": {Type: b.objects[entity.KindChildAccount], Resolve: onNode(func(_ context.Context, n node) (any, error) {
				account, err := n.r.One(n.ID, graph.RelAccount)
				return one(n.r, account, err)
			})},
			"accounts": {Type: list(b.accountIface), Resolve: onNode(func(ctx context.Context, n node) (any, error) {
				accounts, err := n.r.Accounts(ctx, n.ID)
				return many(n.r, accounts, err)
			})},
			"rules": {Type: list(b.ruleIface), Resolve: onNode(func(ctx context.Context, n node) (any, error) {
				rules, err := n.r.RulesForChild(ctx, n.ID)
				return many(n.r, rules, err)
			})},
		}
	case kind == entity.KindFamily:
		return gql.Fields{
			"label": {Type: gql.NewNonNull(gql.String), Resolve: onNode(func(_ context.Context, n node) (any, error) {
				return n.Label, nil
			})},
			"institution": {Type: b.objects[entity.KindInstitution], Resolve: onNode(func(_ context.Context, n node) (any, error) {
				institution, err := n.r.One(n.ID, graph.RelInstitution)
				return one(n.r, institution, err)
			})},
			"admins": {Type: list(b.adminIface), Resolve: onNode(func(ctx context.Context, n node) (any, error) {
				admins, err := n.r.Admins(ctx, n.ID)
				return many(n.r, admins, err)
			})},
			"children": {Type: list(b.objects[entity.KindChild]), Resolve: onNode(func(ctx context.Context, n node) (any, error) {
				children, err := n.r.Children(ctx, n.ID)
				return many(n.r, children, err)
			})},
			"wallet": {Type: b.objects[entity.KindWallet], Resolve: onNode(func(_ context.Context, n node) (any, error) {
				wallet, err := n.r.One(n.ID, graph.RelWallet)
				return one(n.r, wallet, err)
			})},
			"rules": {Type: list(b.ruleIface), Resolve: onNode(func(ctx context.Context, n node) (any, error) {
				rules, err := n.r.Expand(ctx, n.ID, graph.RelRules)
				return many(n.r, rules, err)
			})},
		}
	case kind == entity.KindDevice:
		return gql.Fields{
			"label": {Type: gql.NewNonNull(gql.String), Resolve: onNode(func(_ context.Context, n node) (any, error) {
				return n.Label, nil
			})},
			"user": {Type: b.userIface, Resolve: onNode(func(_ context.Context, n node) (any, error) {
				user, err := n.r.One(n.ID, graph.RelUser)
				return one(n.r, user, err)
			})},
		}
	case kind == entity.KindChildAccount:
		fields := gql.Fields{
			"child": {Type: b.objects[entity.KindChild], Resolve: onNode(func(_ context.Context, n node) (any, error) {
				child, err := n.r.Owner(n.ID)
				return one(n.r, child, err)
			})},
			"subAccounts": {Type: list(b.accountIface), Resolve: onNode(func(ctx context.Context, n node) (any, error) {
				subs, err := n.r.Expand(ctx, n.ID, graph.RelSubAccounts)
				return many(n.r, subs, err)
			})},
		}
		for _, purpose := range entity.SubAccountKinds {
			fields[string(purpose)] = &gql.Field{Type: b.objects[purpose], Resolve: onNode(func(_ context.Context, n node) (any, error) {
				child, err := n.r.Owner(n.ID)
				if err != nil {
					return nil, err
				}
				sub, err := n.r.SubAccount(child.ID, purpose)
				return one(n.r, sub, err)
			})}
		}
		return fields
	case kind == entity.KindExternalFunding:
		return gql.Fields{
			"funder": {Type: b.objects[entity.KindParent], Resolve: onNode(func(_ context.Context, n node) (any, error) {
				funder, err := n.r.Owner(n.ID)
				return one(n.r, funder, err)
			})},
		}
	case kind == entity.KindFundDistribution:
		return gql.Fields{
			"rule": {Type: b.ruleIface, Resolve: onNode(func(_ context.Context, n node) (any, error) {
				rule, err := n.r.DistributionRule(n.ID)
				return one(n.r, rule, err)
			})},
		}
	case kind == entity.KindWallet:
		return gql.Fields{
			"family": {Type: b.objects[entity.KindFamily], Resolve: onNode(func(_ context.Context, n node) (any, error) {
				family, err := n.r.Owner(n.ID)
				return one(n.r, family, err)
			})},
		}
	}
	if caps, _ := entity.Capabilities(kind); caps.Has(entity.CapSubAccount) {
		return gql.Fields{
			"purpose": {Type: gql.NewNonNull(b.purpose), Resolve: onNode(func(_ context.Context, n node) (any, error) {
				return n.Kind, nil
			})},
			"composite": {Type: b.objects[entity.KindChildAccount], Resolve: onNode(func(_ context.Context, n node) (any, error) {
				composite, err := n.r.Composite(n.ID)
				return one(n.r, composite, err)
			})},
		}
	}
	return nil
}
