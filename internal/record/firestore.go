package record

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/joseph-ayodele/cardlead/internal/common"
)

// FirestoreStore keeps lead records as documents, for deployments without Notion.
// Property names become document fields; images go to an "images" array.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
	log        *slog.Logger
}

var _ Store = (*FirestoreStore)(nil)

func NewFirestoreStore(client *firestore.Client, collection string, logger *slog.Logger) *FirestoreStore {
	if logger == nil {
		logger = slog.Default()
	}
	if collection == "" {
		collection = "leads"
	}
	return &FirestoreStore{client: client, collection: collection, now: time.Now, log: logger}
}

func (s *FirestoreStore) CreateRecord(ctx context.Context, props Properties) (string, error) {
	doc := props.Native()
	doc["createdAt"] = s.now().UTC()
	doc["images"] = []string{}
	ref, _, err := s.client.Collection(s.collection).Add(ctx, doc)
	if err != nil {
		return "", common.NewRemoteRejection("firestore", "create_record", 0, err.Error())
	}
	s.log.Info("firestore.record.created", "doc_id", ref.ID, "collection", s.collection)
	return ref.ID, nil
}

func (s *FirestoreStore) AppendImageBlocks(ctx context.Context, recordID string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	values := make([]any, len(urls))
	for i, u := range urls {
		values[i] = u
	}
	_, err := s.client.Collection(s.collection).Doc(recordID).Update(ctx, []firestore.Update{
		{Path: "images", Value: firestore.ArrayUnion(values...)},
		{Path: "updatedAt", Value: s.now().UTC()},
	})
	if err != nil {
		return common.NewRemoteRejection("firestore", "append_images", 0, fmt.Sprintf("doc %s: %v", recordID, err))
	}
	return nil
}
