package adapter

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// Archive is long-term object storage for completed interview transcripts.
type Archive interface {
	// Put returns a writer for the object at key
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get loads an archived object
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

type archiveClient struct {
	bucketName string
	client     *storage.Client
}

// NewArchive creates a Cloud Storage backed archive.
func NewArchive(ctx context.Context, bucketName string) (Archive, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &archiveClient{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (a *archiveClient) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	obj := a.client.Bucket(a.bucketName).Object(key)
	return obj.NewWriter(ctx), nil
}

func (a *archiveClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj := a.client.Bucket(a.bucketName).Object(key)
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read from archive", goerr.V("key", key))
	}

	return reader, nil
}
