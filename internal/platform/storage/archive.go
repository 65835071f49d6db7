package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
)

type objectWriter interface {
	io.Writer
	Close() error
}

// InvoiceArchive stores rendered invoice PDFs in a Cloud Storage bucket.
type InvoiceArchive struct {
	bucket string
	open   func(ctx context.Context, object string) objectWriter
}

// NewInvoiceArchive binds the archive to bucket.
func NewInvoiceArchive(client *gcs.Client, bucket string) (*InvoiceArchive, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	handle := client.Bucket(bucket)
	return &InvoiceArchive{
		bucket: bucket,
		open: func(ctx context.Context, object string) objectWriter {
			w := handle.Object(object).NewWriter(ctx)
			w.ContentType = "application/pdf"
			w.CacheControl = "private, no-store"
			return w
		},
	}, nil
}

// PutInvoice uploads the PDF and returns its gs:// URI. Re-rendering overwrites the previous copy.
func (a *InvoiceArchive) PutInvoice(ctx context.Context, orderID, orderNumber string, pdf []byte) (string, error) {
	if a == nil || a.open == nil {
		return "", errors.New("storage: invoice archive not initialised")
	}
	object, err := InvoicePath(orderID, orderNumber)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := a.open(ctx, object)
	if _, err := w.Write(pdf); err != nil {
		// Cancelling before Close aborts the upload.
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: finalize %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, object), nil
}
