package sheet

import "context"

type Store interface {
	List(ctx context.Context, opts ListOpts) ([]Sheet, error)
	Get(ctx context.Context, id string) (Sheet, error)
	Create(ctx context.Context, d Draft) (Sheet, error)
	Update(ctx context.Context, id string, d Draft) (Sheet, error)
	Delete(ctx context.Context, id string) error

	// VerifyPassword reports whether password unlocks the sheet. Disabled
	// sheets are FORBIDDEN.
	VerifyPassword(ctx context.Context, id, password string) (bool, error)
}
