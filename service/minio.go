package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/AnTengye/contractgraph/config"
	"github.com/AnTengye/contractgraph/pipeline"
)

// Artifact content types
const (
	ContentTypeCypher   = "application/x-cypher-query"
	ContentTypeMarkdown = "text/markdown; charset=utf-8"
	ContentTypeJSON     = "application/json"
	ContentTypeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ArtifactStore keeps the files produced for a contract.
type ArtifactStore interface {
	PutArtifact(ctx context.Context, objectName string, data []byte, contentType string) error
}

type MinioService struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

func NewMinioService(cfg *config.MinioConfig) (*MinioService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioService{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *MinioService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// UploadFile uploads a source document
func (s *MinioService) UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	return nil
}

// PutArtifact stores a generated file next to its source document.
func (s *MinioService) PutArtifact(ctx context.Context, objectName string, data []byte, contentType string) error {
	return s.UploadFile(ctx, objectName, bytes.NewReader(data), int64(len(data)), contentType)
}

// GetObject reads a whole object.
func (s *MinioService) GetObject(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", pipeline.ErrMissingSource, objectName)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// GetPresignedURL generates a presigned URL for the object with expiration
func (s *MinioService) GetPresignedURL(ctx context.Context, objectName string) (string, error) {
	expiry := time.Duration(s.config.ExpireDays) * 24 * time.Hour
	url, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url.String(), nil
}

// DeleteFile deletes a file from MINIO
func (s *MinioService) DeleteFile(ctx context.Context, objectName string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// DeletePrefix removes a contract's source document and every artifact
// stored under prefix.
func (s *MinioService) DeletePrefix(ctx context.Context, prefix string) error {
	var errs []error
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		if err := s.DeleteFile(ctx, obj.Key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TextSource reads fallback text from an object.
func (s *MinioService) TextSource(objectName string) pipeline.TextSource {
	return &objectTextSource{svc: s, objectName: objectName}
}

type objectTextSource struct {
	svc        *MinioService
	objectName string
}

func (o *objectTextSource) ReadText(ctx context.Context) (string, error) {
	data, err := o.svc.GetObject(ctx, o.objectName)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ContractPrefix is the object prefix holding everything stored for one
// contract.
func ContractPrefix(tenant, contractID string) string {
	return path.Join(tenant, contractID) + "/"
}

// ArtifactName names a generated file of a contract.
func ArtifactName(tenant, contractID, file string) string {
	return path.Join(tenant, contractID, "artifacts", file)
}
