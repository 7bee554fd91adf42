package assessment

import "context"

type Store interface {
	Create(ctx context.Context, a Assessment) error
	Get(ctx context.Context, id string) (Assessment, error)
	List(ctx context.Context, f Filter) ([]Assessment, error)

	// Acknowledge records ack and marks its assessment acknowledged by the
	// signer. An assessment can be acknowledged once.
	Acknowledge(ctx context.Context, ack Acknowledgment) (Assessment, error)
	Acknowledgments(ctx context.Context, assessmentID string) ([]Acknowledgment, error)
}
