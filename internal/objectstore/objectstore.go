// Package objectstore implements the content-addressable artifact
// blob store: every data blob paired with a sibling metadata-JSON
// blob, keyed by {correlation_uuid}/{store_id}.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/GIScience/climatoology-go/internal/model"
)

// blobType is the user-metadata discriminator every object carries.
type blobType string

const (
	blobTypeData     blobType = "DATA"
	blobTypeMetadata blobType = "METADATA"

	metaObjectNameHeader = "Metadata-Object-Name"
	typeHeader           = "Type"

	metadataSuffix = ".metadata.json"

	// DefaultPresignTTL is the default GetArtifactURL TTL.
	DefaultPresignTTL = 24 * time.Hour
)

// Config holds the object store's connection parameters. Endpoint may
// point at any S3-compatible service (MinIO in development).
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// Store wraps an S3 client scoped to a single bucket.
type Store struct {
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	bucket   string
}

// New builds a Store from Config, resolving credentials the
// conventional way for AWS-backed components: static keys when given,
// otherwise the default credential chain.
func New(ctx context.Context, cfg Config) (*Store, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Store{
		client:   client,
		presign:  s3.NewPresignClient(client),
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}, nil
}

func dataKey(correlationUUID uuid.UUID, storeID string) string {
	return fmt.Sprintf("%s/%s", correlationUUID.String(), storeID)
}

func metadataKey(correlationUUID uuid.UUID, storeID string) string {
	return dataKey(correlationUUID, storeID) + metadataSuffix
}

// Save performs the two blob puts the object store needs: the artifact's
// data file, and a sibling metadata-JSON blob carrying the artifact
// descriptor, each tagged with the inverse cross-reference.
func (s *Store) Save(ctx context.Context, artifact model.Artifact, filePath string) error {
	storeID := model.StoreID(artifact.CorrelationUUID, artifact.Filename)
	dKey := dataKey(artifact.CorrelationUUID, storeID)
	mKey := metadataKey(artifact.CorrelationUUID, storeID)

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open artifact file %s: %w", filePath, err)
	}
	defer f.Close()

	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(dKey),
		Body:   f,
		Metadata: map[string]string{
			typeHeader:           string(blobTypeData),
			metaObjectNameHeader: mKey,
		},
	}); err != nil {
		return fmt.Errorf("upload data blob %s: %w", dKey, err)
	}

	descriptorJSON, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("marshal artifact descriptor: %w", err)
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(mKey),
		Body:   bytes.NewReader(descriptorJSON),
		Metadata: map[string]string{
			typeHeader:           string(blobTypeMetadata),
			metaObjectNameHeader: dKey,
		},
	}); err != nil {
		return fmt.Errorf("upload metadata blob %s: %w", mKey, err)
	}

	return nil
}

// ListAll enumerates every DATA-tagged object under a computation's
// prefix and reconstructs its Artifact descriptor from the paired
// metadata blob.
func (s *Store) ListAll(ctx context.Context, correlationUUID uuid.UUID) ([]model.Artifact, error) {
	prefix := correlationUUID.String() + "/"
	var artifacts []model.Artifact

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, metadataSuffix) {
				continue
			}
			head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
			if err != nil {
				return nil, fmt.Errorf("head object %s: %w", key, err)
			}
			if blobType(head.Metadata[typeHeader]) != blobTypeData {
				continue
			}
			mKey := head.Metadata[metaObjectNameHeader]
			if mKey == "" {
				mKey = key + metadataSuffix
			}
			artifact, err := s.readDescriptor(ctx, mKey)
			if err != nil {
				return nil, err
			}
			artifacts = append(artifacts, artifact)
		}
	}
	return artifacts, nil
}

func (s *Store) readDescriptor(ctx context.Context, metaKey string) (model.Artifact, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(metaKey)})
	if err != nil {
		return model.Artifact{}, fmt.Errorf("get metadata blob %s: %w", metaKey, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("read metadata blob %s: %w", metaKey, err)
	}
	var artifact model.Artifact
	if err := json.Unmarshal(body, &artifact); err != nil {
		return model.Artifact{}, fmt.Errorf("unmarshal artifact descriptor: %w", err)
	}
	return artifact, nil
}

// Fetch downloads a data blob to a local path.
func (s *Store) Fetch(ctx context.Context, correlationUUID uuid.UUID, storeID, destPath string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(dataKey(correlationUUID, storeID)),
	})
	if err != nil {
		return fmt.Errorf("get data blob %s/%s: %w", correlationUUID, storeID, err)
	}
	defer out.Body.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create dest file %s: %w", destPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return fmt.Errorf("copy data blob to %s: %w", destPath, err)
	}
	return nil
}

// GetArtifactURL presigns a bounded-TTL GET for a data blob. ttl
// defaults to DefaultPresignTTL when zero.
func (s *Store) GetArtifactURL(ctx context.Context, correlationUUID uuid.UUID, storeID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(dataKey(correlationUUID, storeID)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return req.URL, nil
}
