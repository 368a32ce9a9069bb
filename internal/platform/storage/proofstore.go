package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// ErrInvalidDataURI indicates the submitted photo is not a decodable data URI.
var ErrInvalidDataURI = errors.New("storage: invalid data uri")

// proofExtensions maps the accepted photo media types to file extensions.
var proofExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ProofStore uploads completion photos to the proofs bucket and returns the
// public object URL stored on the order.
type ProofStore struct {
	client *gcs.Client
	bucket string
}

// NewProofStore constructs a ProofStore writing into the given bucket.
func NewProofStore(client *gcs.Client, bucket string) (*ProofStore, error) {
	if client == nil {
		return nil, errors.New("proof store: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("proof store: bucket is required")
	}
	return &ProofStore{client: client, bucket: bucket}, nil
}

// SavePhoto decodes the data-URI photo and writes it under the order's proofs
// prefix. The object overwrites any previous proof for the same order.
func (p *ProofStore) SavePhoto(ctx context.Context, orderID, orderNumber, dataURI string) (string, error) {
	mediaType, payload, err := decodeDataURI(dataURI)
	if err != nil {
		return "", err
	}
	ext, ok := proofExtensions[mediaType]
	if !ok {
		return "", fmt.Errorf("%w: media type %q not accepted", ErrInvalidDataURI, mediaType)
	}

	object, err := BuildObjectPath(PurposeCompletionProof, PathParams{
		OrderID:     orderID,
		OrderNumber: orderNumber,
		FileName:    fmt.Sprintf("%s.%s", strings.TrimSpace(orderNumber), ext),
	})
	if err != nil {
		return "", err
	}

	writer := p.client.Bucket(p.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = mediaType
	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("proof store: write %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("proof store: close %s: %w", object, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", p.bucket, object), nil
}

// decodeDataURI splits a "data:<media>;base64,<payload>" URI into its media
// type and decoded bytes.
func decodeDataURI(dataURI string) (string, []byte, error) {
	dataURI = strings.TrimSpace(dataURI)
	if !strings.HasPrefix(dataURI, "data:") {
		return "", nil, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}
	meta, payload, ok := strings.Cut(dataURI[len("data:"):], ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}
	mediaType, encoding, ok := strings.Cut(meta, ";")
	if !ok || encoding != "base64" {
		return "", nil, fmt.Errorf("%w: only base64 payloads are accepted", ErrInvalidDataURI)
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if len(decoded) == 0 {
		return "", nil, fmt.Errorf("%w: empty payload", ErrInvalidDataURI)
	}
	return strings.ToLower(strings.TrimSpace(mediaType)), decoded, nil
}
