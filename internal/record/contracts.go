package record

import "context"

// Store is the external database lead records are published to.
type Store interface {
	// CreateRecord creates one record and returns its id.
	CreateRecord(ctx context.Context, props Properties) (string, error)
	// AppendImageBlocks attaches externally hosted images to the record body, in order.
	AppendImageBlocks(ctx context.Context, recordID string, urls []string) error
}
