// Package blob archives per-account change-log snapshots to S3-compatible
// object storage. Snapshots are an operational safety net: they let an
// account be restored if the change log is lost, and bound how far back a
// new device has to replay.
package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusbrowser/nimbus/internal/netx"
	sc "github.com/nimbusbrowser/nimbus/internal/server/config"
	"github.com/nimbusbrowser/nimbus/internal/sync/change"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}

	uploadToPresignedURL     = netx.UploadToPresignedURL
	downloadFromPresignedURL = netx.DownloadFromPresignedURL
)

// Snapshot is the archived JSON document: one account's full change log for
// one data type at a point in time.
type Snapshot struct {
	UserID    string          `json:"user_id"`
	DataType  change.DataType `json:"data_type"`
	CreatedAt time.Time       `json:"created_at"`
	Changes   []change.Change `json:"changes"`
}

// Archive stores snapshots in the configured S3 bucket.
type Archive struct {
	config *sc.Config
}

func NewArchive(config *sc.Config) *Archive {
	return &Archive{config: config}
}

// StorageKey returns the bucket key for a new snapshot of one account and
// data type, partitioned by date for lifecycle policies.
func StorageKey(userID string, dt change.DataType) string {
	d := time.Now()
	return fmt.Sprintf("snapshots/%s/%s/%d/%d/%d/%v.json", userID, dt, d.Year(), d.Month(), d.Day(), uuid.New())
}

func (a *Archive) getPresignClient() (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(a.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.config.S3RootUser,
			a.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(a.config.S3BaseEndpoint)
	})

	return newS3PresignClient(client), nil
}

// StoreSnapshot serializes the snapshot and uploads it through a presigned
// PUT URL. Returns the storage key of the new object.
func (a *Archive) StoreSnapshot(ctx context.Context, userID string, dt change.DataType, cs []change.Change) (string, error) {

	body, err := json.Marshal(Snapshot{
		UserID:    userID,
		DataType:  dt,
		CreatedAt: time.Now().UTC(),
		Changes:   cs,
	})
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	presignClient, err := a.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := a.config.S3Bucket
	key := StorageKey(userID, dt)

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}

	if err := uploadToPresignedURL(req.URL, body); err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}

	return key, nil
}

// GetPresignedGetURL returns a time-limited download URL for an archived
// snapshot, for support tooling and account restores.
func (a *Archive) GetPresignedGetURL(ctx context.Context, key string) (string, error) {

	presignClient, err := a.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := a.config.S3Bucket

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

// FetchSnapshot downloads and decodes an archived snapshot.
func (a *Archive) FetchSnapshot(ctx context.Context, key string) (*Snapshot, error) {

	url, err := a.GetPresignedGetURL(ctx, key)
	if err != nil {
		return nil, err
	}

	body, err := downloadFromPresignedURL(url)
	if err != nil {
		return nil, fmt.Errorf("download snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	if snap.UserID == "" {
		return nil, fmt.Errorf("snapshot %s has no account", key)
	}
	return &snap, nil
}
