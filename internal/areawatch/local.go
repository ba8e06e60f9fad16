package areawatch

import "context"

// Store is the server-side area-watch store.
type Store interface {
	List() []AreaWatch
	Get(id string) (AreaWatch, error)
	Create(w AreaWatch) (AreaWatch, error)
	Patch(id string, patch []byte) (AreaWatch, error)
	Delete(id string) error
}

// Local is an in-process transport over a Store, used when the collection
// and the REST collection live in the same binary.
type Local struct {
	store Store
}

func NewLocal(store Store) *Local {
	return &Local{store: store}
}

func (l *Local) List(ctx context.Context) ([]AreaWatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.store.List(), nil
}

func (l *Local) Create(ctx context.Context, w AreaWatch) (AreaWatch, error) {
	if err := ctx.Err(); err != nil {
		return AreaWatch{}, err
	}
	return l.store.Create(w)
}

func (l *Local) Patch(ctx context.Context, id string, patch []byte) (AreaWatch, error) {
	if err := ctx.Err(); err != nil {
		return AreaWatch{}, err
	}
	return l.store.Patch(id, patch)
}

func (l *Local) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.store.Delete(id)
}
