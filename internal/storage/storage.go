// Package storage wraps the S3-compatible object store holding raw audio
// uploads (input bucket) and transcription JSON produced by the pipeline
// worker (output bucket). The core never streams objects to clients; it only
// issues presigned upload URLs and reads back transcription results.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// UploadExpiry bounds how long a presigned upload URL stays valid.
const UploadExpiry = 5 * time.Minute

type Store struct {
	client       *minio.Client
	inputBucket  string
	outputBucket string
}

type FeedItem struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

func New(endpoint, accessKey, secretKey string, useSSL bool, inputBucket, outputBucket string) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}
	return &Store{
		client:       client,
		inputBucket:  inputBucket,
		outputBucket: outputBucket,
	}, nil
}

// PresignPut returns a time-limited URL for uploading the audio object.
func (s *Store) PresignPut(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.inputBucket, key, UploadExpiry)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// FindTranscription scans the output bucket for a transcription whose key
// ends in "<uploadID>.json". The worker prefixes output keys with its own
// timestamp, so only the suffix is stable.
func (s *Store) FindTranscription(ctx context.Context, uploadID string) (json.RawMessage, bool, error) {
	suffix := uploadID + ".json"
	for obj := range s.client.ListObjects(ctx, s.outputBucket, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			return nil, false, obj.Err
		}
		if !strings.HasSuffix(obj.Key, suffix) {
			continue
		}
		raw, err := s.readObject(ctx, obj.Key)
		if err != nil {
			return nil, false, err
		}
		return raw, true, nil
	}
	return nil, false, nil
}

// ListTranscriptions returns every transcription in the output bucket, keyed
// and reduced to its text field. Admin debugging feed; small buckets only.
func (s *Store) ListTranscriptions(ctx context.Context) ([]FeedItem, error) {
	var items []FeedItem
	for obj := range s.client.ListObjects(ctx, s.outputBucket, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		raw, err := s.readObject(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		var payload struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(raw, &payload)
		items = append(items, FeedItem{Key: obj.Key, Text: payload.Text})
	}
	return items, nil
}

func (s *Store) readObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.outputBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}
