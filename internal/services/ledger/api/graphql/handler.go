package graphql

import (
	"net/http"

	"github.com/graphql-go/handler"
	"go.opentelemetry.io/otel/attribute"

	platformotel "github.com/louisbranch/famledger/internal/platform/otel"
	"github.com/louisbranch/famledger/internal/services/ledger/resolve"
)

const tracerName = "github.com/louisbranch/famledger/internal/services/ledger/api/graphql"

// NewHandler serves the schema over HTTP with introspection and GraphiQL
// enabled. Every request reads one snapshot and carries the caller's locale.
func NewHandler(svc Service) (http.Handler, error) {
	schema, err := NewSchema(svc)
	if err != nil {
		return nil, err
	}
	h := handler.New(&handler.Config{
		Schema:   &schema,
		Pretty:   true,
		GraphiQL: true,
	})
	tracer := platformotel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "graphql.request")
		defer span.End()

		snapshot := resolve.New(svc.Ledger.Snapshot())
		span.SetAttributes(attribute.Int64("ledger.version", int64(snapshot.Version())))
		ctx = WithLocale(ctx, r.Header.Get("Accept-Language"))
		ctx = withResolver(ctx, snapshot)
		h.ContextHandler(ctx, w, r)
	}), nil
}
