package storage

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"prism-board/domain"
	"prism-board/persistence"
)

const tracerName = "prism-board/storage"

// Traced records a span around every call of the wrapped gateway.
type Traced struct {
	base    persistence.Gateway
	backend string
}

func NewTraced(base persistence.Gateway, backend string) *Traced {
	return &Traced{base: base, backend: backend}
}

func (t *Traced) Upsert(ctx context.Context, doc domain.BoardDocument) (err error) {
	ctx, span := t.start(ctx, "boards.upsert", doc.UserID,
		attribute.String("prism.board.id", doc.ID),
		attribute.Int("prism.board.tasks", len(doc.Tasks)),
	)
	defer func() { finish(span, err) }()
	return t.base.Upsert(ctx, doc)
}

func (t *Traced) FetchAll(ctx context.Context, userID string) (docs []domain.BoardDocument, err error) {
	ctx, span := t.start(ctx, "boards.fetch_all", userID)
	defer func() {
		span.SetAttributes(attribute.Int("prism.boards.returned", len(docs)))
		finish(span, err)
	}()
	return t.base.FetchAll(ctx, userID)
}

func (t *Traced) Delete(ctx context.Context, userID, boardID string) (err error) {
	ctx, span := t.start(ctx, "boards.delete", userID, attribute.String("prism.board.id", boardID))
	defer func() { finish(span, err) }()
	return t.base.Delete(ctx, userID, boardID)
}

func (t *Traced) start(ctx context.Context, name, userID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("prism.user.id", userID),
		attribute.String("prism.storage.backend", t.backend),
	)
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
