package storage

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver
)

// NewGCSStore creates a new Google Cloud Storage store. Credentials come
// from the environment (application default credentials).
func NewGCSStore(bucketName, prefix string) (*BlobStore, error) {
	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, fmt.Sprintf("gs://%s", bucketName))
	if err != nil {
		return nil, fmt.Errorf("open GCS bucket %s: %w", bucketName, err)
	}

	return newBlobStore(bucket, "gcs", bucketName, "gs://"+bucketName+"/", prefix), nil
}
