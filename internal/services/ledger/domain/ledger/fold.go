package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/event"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/graph"
)

// Fold applies an event to g. Events were validated by Decide, so an error
// here means the graph and the journal disagree; the caller must discard g.
func Fold(g *graph.Graph, evt event.Event) error {
	at := evt.Timestamp.UTC()
	var err error
	switch evt.Type {
	case event.TypeInstitutionRegistered:
		err = foldUser(g, evt, entity.KindInstitution, at)
	case event.TypeParentRegistered:
		err = foldUser(g, evt, entity.KindParent, at)
	case event.TypeFamilyCreated:
		err = foldFamily(g, evt, at)
	case event.TypeFamilyAdminAdded:
		var p AdminAddPayload
		if err = decode(evt, &p); err == nil {
			err = addAdmin(g, entity.ID(p.FamilyID), entity.ID(p.AdminID))
		}
	case event.TypeChildAdded:
		err = foldChild(g, evt, at)
	case event.TypeDeviceRegistered:
		var p DeviceRegisterPayload
		if err = decode(evt, &p); err == nil {
			err = insertLinked(g, entity.Spec{ID: entity.ID(p.DeviceID), Kind: entity.KindDevice, CreatedAt: at, Label: p.Label},
				link{entity.ID(p.DeviceID), graph.RelUser, entity.ID(p.UserID)})
		}
	case event.TypeFundingSourceLinked:
		var p FundingSourceLinkPayload
		if err = decode(evt, &p); err == nil {
			err = insertLinked(g, entity.Spec{ID: entity.ID(p.FundingSourceID), Kind: entity.KindExternalFunding, CreatedAt: at, Label: p.Label},
				link{entity.ID(p.ParentID), graph.RelFundingSources, entity.ID(p.FundingSourceID)})
		}
	case event.TypeRecipientRegistered:
		var p RecipientRegisterPayload
		if err = decode(evt, &p); err == nil {
			err = insertLinked(g, entity.Spec{ID: entity.ID(p.RecipientID), Kind: entity.KindPaymentRecipient, CreatedAt: at, Label: p.Label})
		}
	case event.TypeRuleCreated:
		err = foldRule(g, evt, at)
	case event.TypeTransactionRecorded:
		err = foldTransaction(g, evt, at)
	case event.TypeEntityRemoved:
		var p EntityRemovePayload
		if err = decode(evt, &p); err == nil {
			for _, id := range p.Cascade {
				if err = g.Remove(entity.ID(id), at); err != nil {
					break
				}
			}
		}
	default:
		err = fmt.Errorf("unknown event type %q", evt.Type)
	}
	if err != nil {
		return fmt.Errorf("fold %s seq %d: %w", evt.Type, evt.Seq, err)
	}
	return nil
}

type link struct {
	from entity.ID
	rel  graph.Relation
	to   entity.ID
}

func decode(evt event.Event, target any) error {
	return json.Unmarshal(evt.PayloadJSON, target)
}

func insertLinked(g *graph.Graph, spec entity.Spec, links ...link) error {
	e, err := entity.New(spec)
	if err != nil {
		return err
	}
	if _, err := g.Insert(e); err != nil {
		return err
	}
	for _, l := range links {
		if err := g.Link(l.from, l.rel, l.to); err != nil {
			return err
		}
	}
	return nil
}

func foldUser(g *graph.Graph, evt event.Event, kind entity.Kind, at time.Time) error {
	var p UserRegisterPayload
	if err := decode(evt, &p); err != nil {
		return err
	}
	e, err := newUser(p.UserID, kind, p.UserName, p.Address, p.Roles, at)
	if err != nil {
		return err
	}
	_, err = g.Insert(e)
	return err
}

func foldFamily(g *graph.Graph, evt event.Event, at time.Time) error {
	var p FamilyCreatePayload
	if err := decode(evt, &p); err != nil {
		return err
	}
	family, wallet := entity.ID(p.FamilyID), entity.ID(p.WalletID)
	if err := insertLinked(g, entity.Spec{ID: family, Kind: entity.KindFamily, CreatedAt: at, Label: p.Label}); err != nil {
		return err
	}
	if err := insertLinked(g, entity.Spec{ID: wallet, Kind: entity.KindWallet, CreatedAt: at, Label: p.WalletLabel},
		link{family, graph.RelWallet, wallet}); err != nil {
		return err
	}
	return addAdmin(g, family, entity.ID(p.AdminID))
}

func addAdmin(g *graph.Graph, family, admin entity.ID) error {
	if err := g.Link(family, graph.RelAdmins, admin); err != nil {
		return err
	}
	if node, ok := g.Node(admin); ok && node.Kind == entity.KindInstitution {
		return g.Link(admin, graph.RelFamilies, family)
	}
	return nil
}

func foldChild(g *graph.Graph, evt event.Event, at time.Time) error {
	var p ChildAddPayload
	if err := decode(evt, &p); err != nil {
		return err
	}
	child, err := newUser(p.ChildID, entity.KindChild, p.UserName, p.Address, nil, at)
	if err != nil {
		return err
	}
	if _, err := g.Insert(child); err != nil {
		return err
	}
	if err := g.Link(entity.ID(p.FamilyID), graph.RelChildren, child.ID); err != nil {
		return err
	}
	account := entity.ID(p.AccountID)
	if err := insertLinked(g, entity.Spec{ID: account, Kind: entity.KindChildAccount, CreatedAt: at, Label: child.User.UserName},
		link{child.ID, graph.RelAccount, account}); err != nil {
		return err
	}
	for _, purpose := range entity.SubAccountKinds {
		sub := entity.ID(p.SubAccounts[string(purpose)])
		if err := insertLinked(g, entity.Spec{ID: sub, Kind: purpose, CreatedAt: at, Label: string(purpose)},
			link{account, graph.RelSubAccounts, sub}); err != nil {
			return err
		}
	}
	return nil
}

func foldRule(g *graph.Graph, evt event.Event, at time.Time) error {
	var p RuleCreatePayload
	if err := decode(evt, &p); err != nil {
		return err
	}
	rule := entity.ID(p.RuleID)
	return insertLinked(g, entity.Spec{
		ID:        rule,
		Kind:      entity.Kind(p.Kind),
		CreatedAt: at,
		Rule: &entity.RuleTerms{
			Title:      p.Title,
			Recurrence: entity.Recurrence(p.Recurrence),
			Amount:     p.Amount,
			Purpose:    entity.Kind(p.Purpose),
		},
	},
		link{entity.ID(p.FamilyID), graph.RelRules, rule},
		link{rule, graph.RelTarget, entity.ID(p.ChildID)},
		link{rule, graph.RelCreator, entity.ID(p.CreatorID)},
	)
}

func foldTransaction(g *graph.Graph, evt event.Event, at time.Time) error {
	var p TransactionRecordPayload
	if err := decode(evt, &p); err != nil {
		return err
	}
	tx, err := entity.New(entity.Spec{
		ID:          entity.ID(p.TransactionID),
		Kind:        entity.Kind(p.Kind),
		CreatedAt:   at,
		Transaction: &entity.TransactionRecord{Amount: p.Amount, Description: p.Description},
	})
	if err != nil {
		return err
	}
	_, err = g.Post(tx, graph.Posting{
		Source:      entity.ID(p.SourceID),
		Destination: entity.ID(p.DestinationID),
		Initiator:   entity.ID(p.InitiatorID),
		Rule:        entity.ID(p.RuleID),
	})
	return err
}
