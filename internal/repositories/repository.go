package repositories

import (
	"context"
	"fmt"
	"time"

	"logbook/internal/domain"
	"logbook/internal/domain/models"
	"logbook/internal/store"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Repository is a typed view of one collection. P is the pointer type of T,
// which carries the id and creation stamp.
type Repository[T any, P interface {
	*T
	models.Record
}] struct {
	Facade *Facade
	Coll   store.Collection
	Now    func() time.Time
}

func (r Repository[T, P]) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func decode[T any](coll store.Collection, doc store.Document) (T, error) {
	var v T
	if err := json.Unmarshal(doc, &v); err != nil {
		return v, domain.InternalError{Msg: fmt.Sprintf("stored %s record %s is unreadable", coll, doc.ID()), Err: err}
	}
	return v, nil
}

func decodeAll[T any](coll store.Collection, docs []store.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := decode[T](coll, d)
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r Repository[T, P]) List(ctx context.Context) ([]T, error) {
	docs, err := r.Facade.GetAll(ctx, r.Coll)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](r.Coll, docs)
}

// Peek lists from the cache only; ok is false when no snapshot is held.
func (r Repository[T, P]) Peek() ([]T, bool) {
	docs, ok := r.Facade.Peek(r.Coll)
	if !ok {
		return nil, false
	}
	out, err := decodeAll[T](r.Coll, docs)
	if err != nil {
		return nil, false
	}
	return out, true
}

func (r Repository[T, P]) Get(ctx context.Context, id string) (T, error) {
	doc, err := r.Facade.GetByID(ctx, r.Coll, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](r.Coll, doc)
}

// Find looks records up by a JSON field equal to value.
func (r Repository[T, P]) Find(ctx context.Context, field, value string) ([]T, error) {
	docs, err := r.Facade.Find(ctx, r.Coll, field, value)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](r.Coll, docs)
}

// Range lists records whose time field falls in [from, to).
func (r Repository[T, P]) Range(ctx context.Context, field string, from, to time.Time) ([]T, error) {
	docs, err := r.Facade.Range(ctx, r.Coll, field, from, to)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](r.Coll, docs)
}

// stamp assigns an id and creation time to rec when missing.
func (r Repository[T, P]) stamp(rec *T) {
	b := P(rec).Stamp()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.now()
	}
}

func (r Repository[T, P]) encode(rec *T) (store.Document, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%s: encode: %w", r.Coll, err)
	}
	return store.Document(raw), nil
}

// Save inserts or replaces rec, stamping it first.
func (r Repository[T, P]) Save(ctx context.Context, rec *T) error {
	r.stamp(rec)
	doc, err := r.encode(rec)
	if err != nil {
		return err
	}
	return r.Facade.Put(ctx, r.Coll, doc)
}

// SaveAll writes recs in order and reports how many were stored.
func (r Repository[T, P]) SaveAll(ctx context.Context, recs []T) (int, error) {
	docs := make([]store.Document, 0, len(recs))
	for i := range recs {
		r.stamp(&recs[i])
		doc, err := r.encode(&recs[i])
		if err != nil {
			return 0, err
		}
		docs = append(docs, doc)
	}
	return r.Facade.PutAll(ctx, r.Coll, docs)
}

func (r Repository[T, P]) Delete(ctx context.Context, id string) error {
	if _, err := r.Facade.GetByID(ctx, r.Coll, id); err != nil {
		return err
	}
	return r.Facade.Delete(ctx, r.Coll, id)
}

// DeleteMany removes every listed id, stopping at the first failure.
func (r Repository[T, P]) DeleteMany(ctx context.Context, ids []string) (int, error) {
	for i, id := range ids {
		if err := r.Facade.Delete(ctx, r.Coll, id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}
