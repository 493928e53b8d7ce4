package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// BlobDownloader is the part of the azblob client used for staging
type BlobDownloader interface {
	DownloadStream(ctx context.Context, containerName string, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

// AzureSource downloads images referenced as azblob://<container>/<blob>
type AzureSource struct {
	client BlobDownloader
}

// NewAzureSource creates a source authenticated with a shared key
func NewAzureSource(accountName string, accountKey string) (*AzureSource, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credentials: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}

	return &AzureSource{client: client}, nil
}

// NewAzureSourceWithClient wraps an existing downloader
func NewAzureSourceWithClient(client BlobDownloader) *AzureSource {
	return &AzureSource{client: client}
}

func (s *AzureSource) Scheme() string { return SchemeAzBlob }

// Open streams the referenced blob
func (s *AzureSource) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	containerName, blobName, err := ParseBlobRef(ref)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	return resp.Body, nil
}

// ParseBlobRef splits azblob://container/path/to/blob
func ParseBlobRef(ref string) (containerName, blobName string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("invalid blob reference: %w", err)
	}
	if !strings.EqualFold(u.Scheme, SchemeAzBlob) {
		return "", "", fmt.Errorf("invalid blob reference scheme %q", u.Scheme)
	}
	containerName = u.Host
	blobName = strings.TrimPrefix(u.Path, "/")
	if containerName == "" || blobName == "" {
		return "", "", fmt.Errorf("blob reference must name a container and a blob: %q", ref)
	}
	return containerName, blobName, nil
}
