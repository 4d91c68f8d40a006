package backing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	st "github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/settings"
)

// One is all that is required, if you see EOF more than twice it's the end of the actual record not just a blob.
const MAX_CONSECUTIVE_EOF = 1

type RetryReaderWrapper struct {
	innerRetryReader *blob.RetryReader
}

/*
Continually retry reading the retryReader until we are confident we have all the data from azure.

This wrapper is required because the azure RetryReader will return EOF at the end of each chunk of a blob rather than
at the end of the record.
*/
func (rrw *RetryReaderWrapper) Read(p []byte) (n int, err error) {
	readBytes, err := rrw.innerRetryReader.Read(p)
	if err != nil && err != io.EOF {
		return readBytes, err
	}
	totalReadBytes := readBytes
	consecutiveEofWithNoDataRead := 0
	for consecutiveEofWithNoDataRead < MAX_CONSECUTIVE_EOF {
		// We've filled up the byte buffer p so return what we have.
		if totalReadBytes == len(p) {
			return totalReadBytes, nil
		}

		readBytes, err = rrw.innerRetryReader.Read(p[totalReadBytes:])
		totalReadBytes += readBytes
		if err != nil && err != io.EOF {
			return totalReadBytes, err
		}
		if err == io.EOF && readBytes == 0 {
			consecutiveEofWithNoDataRead += 1
		} else if readBytes != 0 {
			consecutiveEofWithNoDataRead = 0
		}
	}
	return totalReadBytes, err
}

func (rrw *RetryReaderWrapper) Close() error {
	return rrw.innerRetryReader.Close()
}

// StoreAzure is a RecordStore implementation holding records in an Azure blob container.
type StoreAzure struct {
	client        *azblob.Client // A reference to the initialised Azure blob store client
	containerName string         // Name of the container records are stored in
	prefix        string
}

var contentType = "binary/octet-stream"

// NewAzureStore instantiates a new StoreAzure.
// The storage account name is specified by endpoint and must be provided in the
// format: "https://<storage-account-name>.blob.core.windows.net/".
// storageAccount is optional, and if empty the name will be extracted from the endpoint.
// A shared key is used when accessKey is set, otherwise the default azure credential chain.
func NewAzureStore(ctx context.Context, endpoint, containerName, storageAccount, accessKey, prefix string) (*StoreAzure, error) {
	var client *azblob.Client

	if accessKey != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("bad azure endpoint: %w", err)
		}
		// cloud storage is in format: https://<storage-account-name>.blob.core.windows.net/
		// Azurite local storage emulator will be in format http://<ip>:<port>/<storage-account-name>/
		// therefore storageAccount must be set manually for Azurite support
		storeName := storageAccount
		if storeName == "" {
			storeName = strings.Split(u.Hostname(), ".")[0]
		}
		cred, err := azblob.NewSharedKeyCredential(storeName, accessKey)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain a credential: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain blobstore: %w", err)
		}
	} else {
		// service principal with secret, requires AZURE_CLIENT_SECRET, AZURE_TENANT_ID, AZURE_CLIENT_ID
		// relevant documentation: https://github.com/Azure/azure-sdk-for-go/tree/main/sdk/azidentity
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain a credential: %w", err)
		}
		client, err = azblob.NewClient(endpoint, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain blobstore: %w", err)
		}
	}

	// create container if required
	_, err := client.CreateContainer(ctx, containerName, nil)
	if err == nil {
		st.Logger.Info().Str("container", containerName).Msg("created container")
	} else if !bloberror.HasCode(err, bloberror.ResourceAlreadyExists, bloberror.ContainerAlreadyExists) {
		return nil, fmt.Errorf("unhandled error of type %T: %w", err, err)
	}

	return &StoreAzure{
		client:        client,
		containerName: containerName,
		prefix:        strings.Trim(prefix, "/"),
	}, nil
}

func (s *StoreAzure) Backend() string { return "azure" }

func (s *StoreAzure) blobName(id string) string {
	if s.prefix == "" {
		return id
	}
	return s.prefix + "/" + id
}

// azureError converts an azure error into NotFoundError or AccessError.
func azureError(err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ContainerBeingDeleted) {
		return fmt.Errorf("%w", &NotFoundError{})
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return fmt.Errorf("%w", &AccessError{msg: string(respErr.ErrorCode)})
	}
	return fmt.Errorf("%w", &AccessError{msg: fmt.Sprintf("%v", err)})
}

// Fetch downloads the whole blob for id.
// A record that does not exist will return a NotFoundError error.
func (s *StoreAzure) Fetch(ctx context.Context, id string) ([]byte, error) {
	var err error
	startTime := time.Now().UnixNano()
	defer func() {
		reportBackingOpMetric(s.Backend(), startTime, "fetch", err)
	}()
	if err = checkID(id); err != nil {
		return nil, err
	}
	get, err := s.client.DownloadStream(ctx, s.containerName, s.blobName(id), nil)
	if err != nil {
		err = azureError(err)
		return nil, err
	}
	rrw := &RetryReaderWrapper{innerRetryReader: get.NewRetryReader(ctx, &blob.RetryReaderOptions{})}
	defer rrw.Close()
	data, err := io.ReadAll(rrw)
	if err != nil {
		err = azureError(err)
		return nil, err
	}
	return data, nil
}

// Exists reports whether the record given by id exists in the container.
func (s *StoreAzure) Exists(ctx context.Context, id string) (bool, error) {
	var err error
	startTime := time.Now().UnixNano()
	defer func() {
		reportBackingOpMetric(s.Backend(), startTime, "exists", err)
	}()
	if err = checkID(id); err != nil {
		return false, err
	}
	c := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlobClient(s.blobName(id))
	_, err = c.GetProperties(ctx, &blob.GetPropertiesOptions{})
	if err == nil {
		return true, nil
	}
	err = azureError(err)
	if IsNotFound(err) {
		err = nil
		return false, nil
	}
	return false, err
}

// Put uploads the record as a single block blob.
func (s *StoreAzure) Put(ctx context.Context, id string, data []byte) error {
	var err error
	startTime := time.Now().UnixNano()
	defer func() {
		reportBackingOpMetric(s.Backend(), startTime, "put", err)
	}()
	if err = checkID(id); err != nil {
		return err
	}
	options := &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	}
	_, err = s.client.UploadBuffer(ctx, s.containerName, s.blobName(id), data, options)
	return err
}

// Delete marks the record's blob for deletion. The blob is later deleted during garbage collection.
//
// If the blob or container do not exist then Delete will return NotFoundError.
func (s *StoreAzure) Delete(ctx context.Context, id string) (bool, error) {
	var err error
	startTime := time.Now().UnixNano()
	defer func() {
		reportBackingOpMetric(s.Backend(), startTime, "delete", err)
	}()
	if err = checkID(id); err != nil {
		return false, err
	}
	_, err = s.client.DeleteBlob(ctx, s.containerName, s.blobName(id), &azblob.DeleteBlobOptions{})
	if err != nil {
		err = azureError(err)
		return false, err
	}
	return true, nil
}

func (s *StoreAzure) List(ctx context.Context, fn func(id string) error) error {
	opts := &azblob.ListBlobsFlatOptions{}
	trim := ""
	if s.prefix != "" {
		trim = s.prefix + "/"
		opts.Prefix = &trim
	}
	pager := s.client.NewListBlobsFlatPager(s.containerName, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return azureError(err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			if err := fn(strings.TrimPrefix(*item.Name, trim)); err != nil {
				return err
			}
		}
	}
	return nil
}
