package graphql

import (
	"context"

	"golang.org/x/text/language"

	"github.com/louisbranch/famledger/internal/services/ledger/resolve"
)

type contextKey int

const (
	localeKey contextKey = iota
	resolverKey
)

// WithLocale records the caller's preferred locale from an Accept-Language
// header value.
func WithLocale(ctx context.Context, acceptLanguage string) context.Context {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return ctx
	}
	return context.WithValue(ctx, localeKey, tags[0].String())
}

func localeFrom(ctx context.Context) string {
	locale, _ := ctx.Value(localeKey).(string)
	return locale
}

// withResolver pins the snapshot every root query of a request reads.
func withResolver(ctx context.Context, r *resolve.Resolver) context.Context {
	return context.WithValue(ctx, resolverKey, r)
}

func resolverFrom(ctx context.Context) (*resolve.Resolver, bool) {
	r, ok := ctx.Value(resolverKey).(*resolve.Resolver)
	return r, ok
}
