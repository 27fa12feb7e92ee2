package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/common"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/cryptox"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/metrics"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/netx"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/audit"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/auth"
	sc "github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/config"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/repositories/repomanager"
)

const presignExpiry = 15 * time.Minute

// Indirections over the AWS SDK so tests can substitute failures without a
// live S3 endpoint.
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

	uploadToPresignedURL     = netx.UploadToS3PresignedURL
	downloadFromPresignedURL = netx.DownloadFromS3PresignedURL
)

// ArchiveService copies immutable version snapshots to S3-compatible
// object storage and restores them for integrity checks. The database row
// stays authoritative; the archive is a cold copy.
type ArchiveService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	audit       audit.Sink
	metrics     *metrics.Metrics
}

func NewArchiveService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config, sink audit.Sink, m *metrics.Metrics) *ArchiveService {
	return &ArchiveService{
		db:          db,
		repomanager: repomanager,
		config:      config,
		audit:       sink,
		metrics:     m,
	}
}

// ArchiveStorageKey places snapshots under their artifact prefix so one
// manuscript's archive is a single listing.
func ArchiveStorageKey(artifactID, versionID string) string {
	return fmt.Sprintf("artifacts/%s/versions/%s", artifactID, versionID)
}

func (s *ArchiveService) getPresignClient() (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return newS3PresignClient(client), nil
}

// ArchiveVersion uploads a version's content to object storage and returns
// the storage key.
func (s *ArchiveService) ArchiveVersion(ctx context.Context, actorToken, artifactID, versionID string) (string, error) {
	actor, err := auth.ActorFromToken(actorToken, []byte(s.config.SecretKey))
	if err != nil {
		return "", err
	}

	version, err := s.repomanager.Versions(s.db).GetByID(ctx, artifactID, versionID)
	if err != nil {
		return "", err
	}

	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	key := ArchiveStorageKey(artifactID, versionID)

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", err
	}

	if err := uploadToPresignedURL(req.URL, []byte(version.Content)); err != nil {
		s.metrics.ArchiveUploadsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("uploading snapshot: %w", err)
	}
	s.metrics.ArchiveUploadsTotal.WithLabelValues("ok").Inc()

	s.audit.Emit(ctx, audit.Event{
		Type:       audit.EventVersionArchived,
		ArtifactID: artifactID,
		Branch:     version.EffectiveBranch(),
		VersionID:  versionID,
		Actor:      actor.Label(),
		At:         time.Now(),
		Details:    map[string]string{"storage_key": key},
	})

	return key, nil
}

// RestoreVersion downloads an archived snapshot and verifies it against
// the stored content digest before returning it.
func (s *ArchiveService) RestoreVersion(ctx context.Context, artifactID, versionID string) (string, error) {
	version, err := s.repomanager.Versions(s.db).GetByID(ctx, artifactID, versionID)
	if err != nil {
		return "", err
	}

	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	key := ArchiveStorageKey(artifactID, versionID)

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", err
	}

	payload, err := downloadFromPresignedURL(req.URL)
	if err != nil {
		s.metrics.ArchiveDownloadsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("downloading snapshot: %w", err)
	}
	s.metrics.ArchiveDownloadsTotal.WithLabelValues("ok").Inc()

	content := string(payload)
	if !cryptox.VerifyContent(content, version.ContentHash) {
		return "", fmt.Errorf("archived snapshot of version %s: %w", versionID, common.ErrDigestMismatch)
	}
	return content, nil
}
