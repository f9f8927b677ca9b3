package graphql

import (
	"context"
	"fmt"

	gql "github.com/graphql-go/graphql"

	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
	"github.com/louisbranch/famledger/internal/services/ledger/engine"
	"github.com/louisbranch/famledger/internal/services/ledger/resolve"
	"github.com/louisbranch/famledger/internal/services/ledger/schedule"
	"github.com/louisbranch/famledger/internal/services/ledger/storage"
)

// Service is what the schema resolves against.
type Service struct {
	Ledger *engine.Ledger
	Index  storage.TransactionIndex
	// Scheduler backs runScheduledRules. A default one is built when nil.
	Scheduler *schedule.Scheduler
}

// NewSchema builds the ledger schema.
func NewSchema(svc Service) (gql.Schema, error) {
	if svc.Ledger == nil {
		return gql.Schema{}, fmt.Errorf("ledger is required")
	}
	if svc.Index == nil {
		return gql.Schema{}, fmt.Errorf("transaction index is required")
	}
	if svc.Scheduler == nil {
		svc.Scheduler = schedule.New(svc.Ledger)
	}
	b := newBuilder(svc)

	types := make([]gql.Type, 0, len(b.objects))
	for _, kind := range entity.Kinds() {
		types = append(types, b.objects[kind])
	}
	schema, err := gql.NewSchema(gql.SchemaConfig{
		Query:    b.query(),
		Mutation: b.mutation(),
		Types:    types,
	})
	if err != nil {
		return gql.Schema{}, fmt.Errorf("build schema: %w", err)
	}
	return schema, nil
}

// snapshot returns the resolver pinned for this request, or one over the
// latest published snapshot.
func (b *builder) snapshot(ctx context.Context) *resolve.Resolver {
	if r, ok := resolverFrom(ctx); ok {
		return r
	}
	return resolve.New(b.svc.Ledger.Snapshot())
}

func idArgs() gql.FieldConfigArgument {
	return gql.FieldConfigArgument{"id": {Type: gql.NewNonNull(gql.ID)}}
}

// lookup builds a root field that reads one entity by id.
func (b *builder) lookup(t gql.Output, find func(r *resolve.Resolver, id entity.ID) (entity.Entity, error)) *gql.Field {
	return &gql.Field{
		Type: t,
		Args: idArgs(),
		Resolve: func(p gql.ResolveParams) (any, error) {
			r := b.snapshot(p.Context)
			e, err := find(r, entity.ID(stringArg(p.Args, "id")))
			if err != nil {
				return absentOr(p.Context, err)
			}
			return node{Entity: e, r: r}, nil
		},
	}
}

func (b *builder) query() *gql.Object {
	return gql.NewObject(gql.ObjectConfig{
		Name: "Query",
		Fields: gql.Fields{
			"node":        b.lookup(b.nodeIface, (*resolve.Resolver).Lookup),
			"family":      b.lookup(b.objects[entity.KindFamily], (*resolve.Resolver).Family),
			"user":        b.lookup(b.userIface, (*resolve.Resolver).User),
			"child":       b.lookup(b.objects[entity.KindChild], (*resolve.Resolver).Child),
			"account":     b.lookup(b.accountIface, (*resolve.Resolver).Account),
			"transaction": b.lookup(b.transactionIface, (*resolve.Resolver).Transaction),
			"fundingRule": b.lookup(b.ruleIface, (*resolve.Resolver).Rule),
			"ledger": {
				Type:        gql.NewNonNull(b.ledgerPage),
				Description: "Pages through every recorded transaction, oldest first unless descending.",
				Args: gql.FieldConfigArgument{
					"filter":     {Type: gql.String, Description: "Filter over kind, source_id, destination_id, initiator_id, rule_id, amount and ts."},
					"pageSize":   {Type: gql.Int},
					"pageToken":  {Type: gql.String},
					"descending": {Type: gql.Boolean, DefaultValue: false},
				},
				Resolve: b.resolveLedger,
			},
		},
	})
}

// ledgerPage is one page of the transaction index bound to a snapshot.
type ledgerPage struct {
	transactions []node
	next         string
	prev         string
	total        int
}

func (b *builder) pages() {
	b.ledgerPage = gql.NewObject(gql.ObjectConfig{
		Name: "LedgerPage",
		Fields: gql.FieldsThunk(func() gql.Fields {
			return gql.Fields{
				"transactions": {Type: list(b.transactionIface), Resolve: pageField(func(p ledgerPage) any { return p.transactions })},
				"nextPageToken": {Type: gql.String, Resolve: pageField(func(p ledgerPage) any {
					return optional(p.next)
				})},
				"prevPageToken": {Type: gql.String, Resolve: pageField(func(p ledgerPage) any {
					return optional(p.prev)
				})},
				"totalCount": {Type: gql.NewNonNull(gql.Int), Resolve: pageField(func(p ledgerPage) any { return p.total })},
			}
		}),
	})

	b.skippedRule = gql.NewObject(gql.ObjectConfig{
		Name: "SkippedRule",
		Fields: gql.FieldsThunk(func() gql.Fields {
			return gql.Fields{
				"rule": {Type: b.ruleIface, Resolve: func(p gql.ResolveParams) (any, error) {
					s, ok := p.Source.(skipped)
					if !ok {
						return nil, nil
					}
					rule, err := s.r.Lookup(s.ruleID)
					if err != nil {
						return absentOr(p.Context, err)
					}
					return node{Entity: rule, r: s.r}, nil
				}},
				"code": {Type: gql.NewNonNull(gql.String), Resolve: func(p gql.ResolveParams) (any, error) {
					s, _ := p.Source.(skipped)
					return s.code, nil
				}},
				"message": {Type: gql.NewNonNull(gql.String), Resolve: func(p gql.ResolveParams) (any, error) {
					s, _ := p.Source.(skipped)
					return s.message, nil
				}},
			}
		}),
	})

	b.scheduleReport = gql.NewObject(gql.ObjectConfig{
		Name: "ScheduleReport",
		Fields: gql.FieldsThunk(func() gql.Fields {
			return gql.Fields{
				"distributions": {Type: list(b.objects[entity.KindFundDistribution]), Resolve: func(p gql.ResolveParams) (any, error) {
					report, _ := p.Source.(scheduleReport)
					return report.distributions, nil
				}},
				"skipped": {Type: list(b.skippedRule), Resolve: func(p gql.ResolveParams) (any, error) {
					report, _ := p.Source.(scheduleReport)
					return report.skipped, nil
				}},
			}
		}),
	})
}

func pageField(get func(ledgerPage) any) gql.FieldResolveFn {
	return func(p gql.ResolveParams) (any, error) {
		page, ok := p.Source.(ledgerPage)
		if !ok {
			return nil, nil
		}
		return get(page), nil
	}
}

func optional(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// resolveLedger lists transactions from the index and binds each to the
// request snapshot. Rows the snapshot has not published yet are left out.
func (b *builder) resolveLedger(p gql.ResolveParams) (any, error) {
	page, err := b.svc.Index.ListTransactions(p.Context, storage.ListTransactionsRequest{
		PageSize:   intArg(p.Args, "pageSize"),
		PageToken:  stringArg(p.Args, "pageToken"),
		Filter:     stringArg(p.Args, "filter"),
		Descending: boolArg(p.Args, "descending"),
	})
	if err != nil {
		return nil, present(p.Context, err)
	}
	r := b.snapshot(p.Context)
	out := ledgerPage{
		transactions: make([]node, 0, len(page.Transactions)),
		next:         page.NextPageToken,
		prev:         page.PrevPageToken,
		total:        page.TotalCount,
	}
	for _, rec := range page.Transactions {
		tx, err := r.Transaction(entity.ID(rec.ID))
		if resolve.IsAbsent(err) {
			continue
		}
		if err != nil {
			return nil, present(p.Context, err)
		}
		out.transactions = append(out.transactions, node{Entity: tx, r: r})
	}
	return out, nil
}

func stringArg(args map[string]any, name string) string {
	v, _ := args[name].(string)
	return v
}

func intArg(args map[string]any, name string) int {
	v, _ := args[name].(int)
	return v
}

func boolArg(args map[string]any, name string) bool {
	v, _ := args[name].(bool)
	return v
}
