package adapter

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spool-learn/interview/pkg/model"
)

// TranscriptSink mirrors transcript entries to an external consumer as they
// are committed. Delivery is fire-and-forget from the engine's point of view.
type TranscriptSink interface {
	SaveEntry(ctx context.Context, sessionID model.SessionID, entry model.TranscriptEntry) error
}

// firestoreSink implements TranscriptSink on Firestore: one document per
// session under the transcripts collection, entries in a subcollection.
type firestoreSink struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreTranscriptSink creates a Firestore-backed transcript sink.
func NewFirestoreTranscriptSink(ctx context.Context, projectID, databaseID string) (TranscriptSink, error) {
	if projectID == "" {
		return nil, goerr.New("project ID is required")
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}

	return &firestoreSink{
		client:     client,
		collection: "interview_transcripts",
	}, nil
}

func (s *firestoreSink) SaveEntry(ctx context.Context, sessionID model.SessionID, entry model.TranscriptEntry) error {
	doc := s.client.Collection(s.collection).Doc(string(sessionID))

	_, _, err := doc.Collection("entries").Add(ctx, entry)
	if err != nil {
		return goerr.Wrap(err, "failed to save transcript entry",
			goerr.V("session_id", sessionID))
	}

	return nil
}
