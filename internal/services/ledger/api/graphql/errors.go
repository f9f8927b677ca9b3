package graphql

import (
	"context"
	"errors"
	"log"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/services/ledger/resolve"
	"github.com/louisbranch/famledger/internal/services/ledger/storage"
)

// absentOr resolves a typed absence to null and presents anything else.
func absentOr(ctx context.Context, err error) (any, error) {
	if resolve.IsAbsent(err) {
		return nil, nil
	}
	return nil, present(ctx, err)
}

// present turns err into an error whose extensions carry the domain code.
// graphql-go only reads extensions from the error it was handed, so the
// domain error is rebuilt rather than wrapped.
func present(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch {
	case errors.Is(err, storage.ErrInvalidFilter):
		err = apperrors.WithMetadata(apperrors.CodeInvalidArgument, err.Error(), map[string]string{"field": "filter"})
	case errors.Is(err, storage.ErrInvalidPageToken):
		err = apperrors.WithMetadata(apperrors.CodeInvalidArgument, err.Error(), map[string]string{"field": "pageToken"})
	}

	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		log.Printf("graphql: internal error: %v", err)
		return apperrors.New(apperrors.CodeUnknown, apperrors.UserMessage(err, localeFrom(ctx)))
	}
	return &apperrors.Error{
		Code:     domainErr.Code,
		Message:  apperrors.UserMessage(err, localeFrom(ctx)),
		Metadata: domainErr.Metadata,
	}
}
