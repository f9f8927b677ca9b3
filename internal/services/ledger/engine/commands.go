package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/louisbranch/famledger/internal/services/ledger/domain/command"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/ledger"
)

// Submit marshals payload into a command and executes it.
func (l *Ledger) Submit(ctx context.Context, typ command.Type, actorID, requestID string, payload any) (Result, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return l.Execute(ctx, command.Command{
		Type:        typ,
		ActorID:     actorID,
		RequestID:   requestID,
		PayloadJSON: data,
	})
}

// fill assigns a generated id to every empty target.
func (l *Ledger) fill(targets ...*string) error {
	for _, target := range targets {
		if strings.TrimSpace(*target) != "" {
			continue
		}
		v, err := l.NewID()
		if err != nil {
			return fmt.Errorf("generate id: %w", err)
		}
		*target = v
	}
	return nil
}

// RegisterInstitution registers a financial institution.
func (l *Ledger) RegisterInstitution(ctx context.Context, p ledger.UserRegisterPayload) (entity.ID, error) {
	if err := l.fill(&p.UserID); err != nil {
		return "", err
	}
	_, err := l.Submit(ctx, ledger.CommandTypeInstitutionRegister, "", "", p)
	return entity.ID(p.UserID), err
}

// RegisterParent registers a parent with the given roles.
func (l *Ledger) RegisterParent(ctx context.Context, p ledger.UserRegisterPayload) (entity.ID, error) {
	if err := l.fill(&p.UserID); err != nil {
		return "", err
	}
	_, err := l.Submit(ctx, ledger.CommandTypeParentRegister, "", "", p)
	return entity.ID(p.UserID), err
}

// CreateFamily creates a family and its wallet with actor as first admin.
func (l *Ledger) CreateFamily(ctx context.Context, actor entity.ID, p ledger.FamilyCreatePayload) (entity.ID, error) {
	if err := l.fill(&p.FamilyID, &p.WalletID); err != nil {
		return "", err
	}
	_, err := l.Submit(ctx, ledger.CommandTypeFamilyCreate, string(actor), "", p)
	return entity.ID(p.FamilyID), err
}

// AddAdmin adds an administrator to a family.
func (l *Ledger) AddAdmin(ctx context.Context, actor entity.ID, p ledger.AdminAddPayload) error {
	_, err := l.Submit(ctx, ledger.CommandTypeFamilyAdminAdd, string(actor), "", p)
	return err
}

// AddChild adds a child with a composite account and one sub-account per purpose.
func (l *Ledger) AddChild(ctx context.Context, actor entity.ID, p ledger.ChildAddPayload) (entity.ID, error) {
	if err := l.fill(&p.ChildID, &p.AccountID); err != nil {
		return "", err
	}
	subs := make(map[string]string, len(entity.SubAccountKinds))
	for purpose, v := range p.SubAccounts {
		subs[purpose] = v
	}
	for _, kind := range entity.SubAccountKinds {
		v := subs[string(kind)]
		if err := l.fill(&v); err != nil {
			return "", err
		}
		subs[string(kind)] = v
	}
	p.SubAccounts = subs
	_, err := l.Submit(ctx, ledger.CommandTypeChildAdd, string(actor), "", p)
	return entity.ID(p.ChildID), err
}

// RegisterDevice registers a device for a user.
func (l *Ledger) RegisterDevice(ctx context.Context, actor entity.ID, p ledger.DeviceRegisterPayload) (entity.ID, error) {
	if err := l.fill(&p.DeviceID); err != nil {
		return "", err
	}
	_, err := l.Submit(ctx, ledger.CommandTypeDeviceRegister, string(actor), "", p)
	return entity.ID(p.DeviceID), err
}

// LinkFundingSource links an external funding account to a parent.
func (l *Ledger) LinkFundingSource(ctx context.Context, actor entity.ID, p ledger.FundingSourceLinkPayload) (entity.ID, error) {
	if err := l.fill(&p.FundingSourceID); err != nil {
		return "", err
	}
	_, err := l.Submit(ctx, ledger.CommandTypeFundingSourceLink, string(actor), "", p)
	return entity.ID(p.FundingSourceID), err
}

// RegisterRecipient registers a payment recipient.
func (l *Ledger) RegisterRecipient(ctx context.Context, actor entity.ID, p ledger.RecipientRegisterPayload) (entity.ID, error) {
	if err := l.fill(&p.RecipientID); err != nil {
		return "", err
	}
	_, err := l.Submit(ctx, ledger.CommandTypeRecipientRegister, string(actor), "", p)
	return entity.ID(p.RecipientID), err
}

// CreateRule creates a funding rule.
func (l *Ledger) CreateRule(ctx context.Context, actor entity.ID, p ledger.RuleCreatePayload) (entity.ID, error) {
	if err := l.fill(&p.RuleID); err != nil {
		return "", err
	}
	_, err := l.Submit(ctx, ledger.CommandTypeRuleCreate, string(actor), "", p)
	return entity.ID(p.RuleID), err
}

// RecordTransaction records a transaction initiated by actor.
func (l *Ledger) RecordTransaction(ctx context.Context, actor entity.ID, p ledger.TransactionRecordPayload) (entity.ID, error) {
	if err := l.fill(&p.TransactionID); err != nil {
		return "", err
	}
	_, err := l.Submit(ctx, ledger.CommandTypeTransactionRecord, string(actor), "", p)
	return entity.ID(p.TransactionID), err
}

// Remove removes an entity and whatever its removal cascades to.
func (l *Ledger) Remove(ctx context.Context, actor, target entity.ID) ([]entity.ID, error) {
	res, err := l.Submit(ctx, ledger.CommandTypeEntityRemove, string(actor), "", ledger.EntityRemovePayload{EntityID: string(target)})
	if err != nil {
		return nil, err
	}
	var removed []entity.ID
	for _, evt := range res.Events {
		var p ledger.EntityRemovePayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return nil, fmt.Errorf("decode removal: %w", err)
		}
		for _, v := range p.Cascade {
			removed = append(removed, entity.ID(v))
		}
	}
	return removed, nil
}
