package graphql

import (
	"context"

	gql "github.com/graphql-go/graphql"

	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/ledger"
	"github.com/louisbranch/famledger/internal/services/ledger/resolve"
)

type skipped struct {
	r       *resolve.Resolver
	ruleID  entity.ID
	code    string
	message string
}

type scheduleReport struct {
	distributions []node
	skipped       []skipped
}

func (b *builder) inputs() map[string]*gql.InputObject {
	address := gql.NewInputObject(gql.InputObjectConfig{
		Name: "AddressInput",
		Fields: gql.InputObjectConfigFieldMap{
			"street":     {Type: gql.String},
			"city":       {Type: gql.String},
			"postalCode": {Type: gql.String},
		},
	})
	nonNullID := gql.NewNonNull(gql.ID)
	nonNullString := gql.NewNonNull(gql.String)
	return map[string]*gql.InputObject{
		"user": gql.NewInputObject(gql.InputObjectConfig{
			Name: "RegisterUserInput",
			Fields: gql.InputObjectConfigFieldMap{
				"id":       {Type: gql.ID},
				"userName": {Type: nonNullString},
				"address":  {Type: address},
				"roles":    {Type: gql.NewList(gql.NewNonNull(b.role))},
			},
		}),
		"family": gql.NewInputObject(gql.InputObjectConfig{
			Name: "CreateFamilyInput",
			Fields: gql.InputObjectConfigFieldMap{
				"id":          {Type: gql.ID},
				"walletId":    {Type: gql.ID},
				"label":       {Type: nonNullString},
				"walletLabel": {Type: gql.String},
			},
		}),
		"child": gql.NewInputObject(gql.InputObjectConfig{
			Name: "AddChildInput",
			Fields: gql.InputObjectConfigFieldMap{
				"id":       {Type: gql.ID},
				"familyId": {Type: nonNullID},
				"userName": {Type: nonNullString},
				"address":  {Type: address},
			},
		}),
		"device": gql.NewInputObject(gql.InputObjectConfig{
			Name: "RegisterDeviceInput",
			Fields: gql.InputObjectConfigFieldMap{
				"id":     {Type: gql.ID},
				"userId": {Type: nonNullID},
				"label":  {Type: gql.String},
			},
		}),
		"fundingSource": gql.NewInputObject(gql.InputObjectConfig{
			Name: "LinkFundingSourceInput",
			Fields: gql.InputObjectConfigFieldMap{
				"id":       {Type: gql.ID},
				"parentId": {Type: nonNullID},
				"label":    {Type: gql.String},
			},
		}),
		"recipient": gql.NewInputObject(gql.InputObjectConfig{
			Name: "RegisterRecipientInput",
			Fields: gql.InputObjectConfigFieldMap{
				"id":    {Type: gql.ID},
				"label": {Type: nonNullString},
			},
		}),
		"rule": gql.NewInputObject(gql.InputObjectConfig{
			Name: "CreateFundingRuleInput",
			Fields: gql.InputObjectConfigFieldMap{
				"id":         {Type: gql.ID},
				"kind":       {Type: gql.NewNonNull(b.ruleKind)},
				"childId":    {Type: nonNullID},
				"title":      {Type: gql.String},
				"recurrence": {Type: gql.NewNonNull(b.recurrence)},
				"amount":     {Type: gql.NewNonNull(gql.Int)},
				"purpose":    {Type: gql.NewNonNull(b.purpose)},
			},
		}),
		"transaction": gql.NewInputObject(gql.InputObjectConfig{
			Name: "RecordTransactionInput",
			Fields: gql.InputObjectConfigFieldMap{
				"id":            {Type: gql.ID},
				"kind":          {Type: gql.NewNonNull(b.transactionKind)},
				"amount":        {Type: gql.NewNonNull(gql.Int)},
				"description":   {Type: gql.String},
				"sourceId":      {Type: nonNullID},
				"destinationId": {Type: nonNullID},
				"ruleId":        {Type: gql.ID},
			},
		}),
	}
}

// write builds a mutation that runs a ledger command and answers with the
// entity it created, read from the snapshot the write published. Absence is
// an error here: the caller named something that must exist.
func (b *builder) write(t gql.Output, args gql.FieldConfigArgument, run func(ctx context.Context, p gql.ResolveParams) (entity.ID, error)) *gql.Field {
	return &gql.Field{
		Type: t,
		Args: args,
		Resolve: func(p gql.ResolveParams) (any, error) {
			id, err := run(p.Context, p)
			if err != nil {
				return nil, present(p.Context, err)
			}
			r := resolve.New(b.svc.Ledger.Snapshot())
			e, err := r.Lookup(id)
			if err != nil {
				return nil, present(p.Context, err)
			}
			return node{Entity: e, r: r}, nil
		},
	}
}

func (b *builder) mutation() *gql.Object {
	in := b.inputs()
	l := b.svc.Ledger
	withInput := func(name string) gql.FieldConfigArgument {
		return gql.FieldConfigArgument{
			"actorId": {Type: gql.NewNonNull(gql.ID)},
			"input":   {Type: gql.NewNonNull(in[name])},
		}
	}

	return gql.NewObject(gql.ObjectConfig{
		Name: "Mutation",
		Fields: gql.Fields{
			"registerInstitution": b.write(b.objects[entity.KindInstitution],
				gql.FieldConfigArgument{"input": {Type: gql.NewNonNull(in["user"])}},
				func(ctx context.Context, p gql.ResolveParams) (entity.ID, error) {
					return l.RegisterInstitution(ctx, userPayload(input(p)))
				}),
			"registerParent": b.write(b.objects[entity.KindParent],
				gql.FieldConfigArgument{"input": {Type: gql.NewNonNull(in["user"])}},
				func(ctx context.Context, p gql.ResolveParams) (entity.ID, error) {
					return l.RegisterParent(ctx, userPayload(input(p)))
				}),
			"createFamily": b.write(b.objects[entity.KindFamily], withInput("family"),
				func(ctx context.Context, p gql.ResolveParams) (entity.ID, error) {
					v := input(p)
					return l.CreateFamily(ctx, actor(p), ledger.FamilyCreatePayload{
						FamilyID:    stringArg(v, "id"),
						WalletID:    stringArg(v, "walletId"),
						Label:       stringArg(v, "label"),
						WalletLabel: stringArg(v, "walletLabel"),
					})
				}),
			"addFamilyAdmin": b.write(b.objects[entity.KindFamily],
				gql.FieldConfigArgument{
					"actorId":  {Type: gql.NewNonNull(gql.ID)},
					"familyId": {Type: gql.NewNonNull(gql.ID)},
					"adminId":  {Type: gql.NewNonNull(gql.ID)},
				},
				func(ctx context.Context, p gql.ResolveParams) (entity.ID, error) {
					family := stringArg(p.Args, "familyId")
					err := l.AddAdmin(ctx, actor(p), ledger.AdminAddPayload{FamilyID: family, AdminID: stringArg(p.Args, "adminId")})
					return entity.ID(family), err
				}),
			"addChild": b.write(b.objects[entity.KindChild], withInput("child"),
				func(ctx context.Context, p gql.ResolveParams) (entity.ID, error) {
					v := input(p)
					return l.AddChild(ctx, actor(p), ledger.ChildAddPayload{
						FamilyID: stringArg(v, "familyId"),
						ChildID:  stringArg(v, "id"),
						UserName: stringArg(v, "userName"),
						Address:  addressPayload(v),
					})
				}),
			"registerDevice": b.write(b.objects[entity.KindDevice], withInput("device"),
				func(ctx context.Context, p gql.ResolveParams) (entity.ID, error) {
					v := input(p)
					return l.RegisterDevice(ctx, actor(p), ledger.DeviceRegisterPayload{
						DeviceID: stringArg(v, "id"),
						UserID:   stringArg(v, "userId"),
						Label:    stringArg(v, "label"),
					})
				}),
			"linkFundingSource": b.write(b.objects[entity.KindExternalFunding], withInput("fundingSource"),
				func(ctx context.Context, p gql.ResolveParams) (entity.ID, error) {
					v := input(p)
					return l.LinkFundingSource(ctx, actor(p), ledger.FundingSourceLinkPayload{
						FundingSourceID: stringArg(v, "id"),
						ParentID:        stringArg(v, "parentId"),
						Label:           stringArg(v, "label"),
					})
				}),
			"registerRecipient": b.write(b.objects[entity.KindPaymentRecipient], withInput("recipient"),
				func(ctx context.Context, p gql.ResolveParams) (entity.ID, error) {
					v := input(p)
					return l.RegisterRecipient(ctx, actor(p), ledger.RecipientRegisterPayload{
						RecipientID: stringArg(v, "id"),
						Label:       stringArg(v, "label"),
					})
				}),
			"createFundingRule": b.write(b.ruleIface, withInput("rule"),
				func(ctx context.Context, p gql.ResolveParams) (entity.ID, error) {
					v := input(p)
					return l.CreateRule(ctx, actor(p), ledger.RuleCreatePayload{
						RuleID:     stringArg(v, "id"),
						Kind:       kindArg(v, "kind"),
						ChildID:    stringArg(v, "childId"),
						Title:      stringArg(v, "title"),
						Recurrence: recurrenceArg(v, "recurrence"),
						Amount:     int64(intArg(v, "amount")),
						Purpose:    kindArg(v, "purpose"),
					})
				}),
			"recordTransaction": b.write(b.transactionIface, withInput("transaction"),
				func(ctx context.Context, p gql.ResolveParams) (entity.ID, error) {
					v := input(p)
					return l.RecordTransaction(ctx, actor(p), ledger.TransactionRecordPayload{
						TransactionID: stringArg(v, "id"),
						Kind:          kindArg(v, "kind"),
						Amount:        int64(intArg(v, "amount")),
						Description:   stringArg(v, "description"),
						SourceID:      stringArg(v, "sourceId"),
						DestinationID: stringArg(v, "destinationId"),
						RuleID:        stringArg(v, "ruleId"),
					})
				}),
			"removeEntity": {
				Type:        list(gql.ID),
				Description: "Removes an entity and whatever its removal cascades to. Returns every removed id.",
				Args: gql.FieldConfigArgument{
					"actorId": {Type: gql.NewNonNull(gql.ID)},
					"id":      {Type: gql.NewNonNull(gql.ID)},
				},
				Resolve: func(p gql.ResolveParams) (any, error) {
					removed, err := l.Remove(p.Context, actor(p), entity.ID(stringArg(p.Args, "id")))
					if err != nil {
						return nil, present(p.Context, err)
					}
					ids := make([]string, 0, len(removed))
					for _, id := range removed {
						ids = append(ids, string(id))
					}
					return ids, nil
				},
			},
			"runScheduledRules": {
				Type:        gql.NewNonNull(b.scheduleReport),
				Description: "Records every funding rule distribution that is due now.",
				Resolve:     b.runScheduledRules,
			},
		},
	})
}

func (b *builder) runScheduledRules(p gql.ResolveParams) (any, error) {
	report, err := b.svc.Scheduler.RunDue(p.Context, b.svc.Ledger.Now())
	if err != nil {
		return nil, present(p.Context, err)
	}
	r := resolve.New(b.svc.Ledger.Snapshot())
	out := scheduleReport{
		distributions: make([]node, 0, len(report.Recorded)),
		skipped:       make([]skipped, 0, len(report.Skipped)),
	}
	for _, d := range report.Recorded {
		tx, err := r.Lookup(d.TransactionID)
		if err != nil {
			return nil, present(p.Context, err)
		}
		out.distributions = append(out.distributions, node{Entity: tx, r: r})
	}
	for _, s := range report.Skipped {
		presented := present(p.Context, s.Err)
		code := "UNKNOWN"
		if ext, ok := presented.(interface{ Extensions() map[string]any }); ok {
			code, _ = ext.Extensions()["code"].(string)
		}
		out.skipped = append(out.skipped, skipped{r: r, ruleID: s.RuleID, code: code, message: presented.Error()})
	}
	return out, nil
}

func input(p gql.ResolveParams) map[string]any {
	v, _ := p.Args["input"].(map[string]any)
	return v
}

func actor(p gql.ResolveParams) entity.ID {
	return entity.ID(stringArg(p.Args, "actorId"))
}

func kindArg(args map[string]any, name string) string {
	v, _ := args[name].(entity.Kind)
	return string(v)
}

func recurrenceArg(args map[string]any, name string) string {
	v, _ := args[name].(entity.Recurrence)
	return string(v)
}

func userPayload(v map[string]any) ledger.UserRegisterPayload {
	p := ledger.UserRegisterPayload{
		UserID:   stringArg(v, "id"),
		UserName: stringArg(v, "userName"),
		Address:  addressPayload(v),
	}
	roles, _ := v["roles"].([]any)
	for _, role := range roles {
		if r, ok := role.(entity.Role); ok {
			p.Roles = append(p.Roles, string(r))
		}
	}
	return p
}

func addressPayload(v map[string]any) *ledger.AddressPayload {
	a, ok := v["address"].(map[string]any)
	if !ok {
		return nil
	}
	return &ledger.AddressPayload{
		Street:     stringArg(a, "street"),
		City:       stringArg(a, "city"),
		PostalCode: stringArg(a, "postalCode"),
	}
}
