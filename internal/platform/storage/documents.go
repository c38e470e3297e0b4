// Package storage keeps candidate uploads and hands out short-lived view URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/bobbygour30/admitcard/internal/domain"
)

const (
	defaultViewTTL = 10 * time.Minute
	maxViewTTL     = 7 * 24 * time.Hour
	gcsScheme      = "gs://"
)

var (
	// ErrInvalidRef is returned for references this store did not produce.
	ErrInvalidRef = errors.New("storage: invalid document reference")
	// ErrNotFound is returned when the referenced object is gone.
	ErrNotFound = errors.New("storage: document not found")
)

// ViewURL is a signed, expiring link to one document.
type ViewURL struct {
	URL       string
	ExpiresAt time.Time
}

// ObjectPath lays out uploads as registrations/<uploadID>/<kind><ext>.
func ObjectPath(uploadID string, kind domain.DocumentKind, blob domain.Blob) string {
	return fmt.Sprintf("registrations/%s/%s%s", strings.TrimSpace(uploadID), kind, blob.Extension())
}

// ParseRef splits "gs://bucket/object".
func ParseRef(ref string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(ref), gcsScheme)
	if !ok {
		return "", "", ErrInvalidRef
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", ErrInvalidRef
	}
	return bucket, object, nil
}

// GCSDocuments stores documents in one Cloud Storage bucket.
type GCSDocuments struct {
	client      *gcs.Client
	bucket      string
	signer      Signer
	signerEmail string
	ttl         time.Duration
	now         func() time.Time
}

// GCSOption customises GCSDocuments.
type GCSOption func(*GCSDocuments)

// WithSigner signs view URLs locally with signer.
func WithSigner(signer Signer) GCSOption {
	return func(d *GCSDocuments) { d.signer = signer }
}

// WithSignerEmail signs view URLs through the IAM credentials API as email.
func WithSignerEmail(email string) GCSOption {
	return func(d *GCSDocuments) { d.signerEmail = strings.TrimSpace(email) }
}

// WithViewTTL sets the lifetime of view URLs.
func WithViewTTL(ttl time.Duration) GCSOption {
	return func(d *GCSDocuments) {
		if ttl > 0 && ttl <= maxViewTTL {
			d.ttl = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) GCSOption {
	return func(d *GCSDocuments) {
		if now != nil {
			d.now = now
		}
	}
}

// NewGCSDocuments returns a store writing to bucket.
func NewGCSDocuments(client *gcs.Client, bucket string, opts ...GCSOption) (*GCSDocuments, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	d := &GCSDocuments{client: client, bucket: bucket, ttl: defaultViewTTL, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Put writes blob under object and returns its reference.
func (d *GCSDocuments) Put(ctx context.Context, object string, blob domain.Blob) (string, error) {
	if d.client == nil {
		return "", errors.New("storage: client is not configured")
	}
	w := d.client.Bucket(d.bucket).Object(object).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = blob.ContentType
	w.CacheControl = "private, max-age=0"
	if _, err := w.Write(blob.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: close %s: %w", object, err)
	}
	return gcsScheme + d.bucket + "/" + object, nil
}

// Delete removes the referenced object. Missing objects are ignored.
func (d *GCSDocuments) Delete(ctx context.Context, ref string) error {
	bucket, object, err := ParseRef(ref)
	if err != nil {
		return err
	}
	err = d.client.Bucket(bucket).Object(object).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

// ViewURL signs a GET URL for ref.
func (d *GCSDocuments) ViewURL(ctx context.Context, ref string) (ViewURL, error) {
	bucket, object, err := ParseRef(ref)
	if err != nil {
		return ViewURL{}, err
	}
	expires := d.now().UTC().Add(d.ttl)
	opts := &gcs.SignedURLOptions{
		Method:  "GET",
		Expires: expires,
		Scheme:  gcs.SigningSchemeV4,
	}

	var url string
	switch {
	case d.signer != nil:
		opts.GoogleAccessID = d.signer.Email()
		opts.SignBytes = func(payload []byte) ([]byte, error) { return d.signer.SignBytes(ctx, payload) }
		url, err = gcs.SignedURL(bucket, object, opts)
	case d.client != nil:
		opts.GoogleAccessID = d.signerEmail
		url, err = d.client.Bucket(bucket).SignedURL(object, opts)
	default:
		err = errors.New("storage: no signer configured")
	}
	if err != nil {
		return ViewURL{}, fmt.Errorf("storage: sign %s: %w", object, err)
	}
	return ViewURL{URL: url, ExpiresAt: expires}, nil
}

// Ping checks that the bucket is reachable.
func (d *GCSDocuments) Ping(ctx context.Context) error {
	_, err := d.client.Bucket(d.bucket).Attrs(ctx)
	return err
}
