package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"layover-match/internal/apperr"
	"layover-match/internal/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// PhotoStorage stores profile photos and returns their public URL.
type PhotoStorage interface {
	CheckImage(contentType string, size int64) error
	UploadPhoto(ctx context.Context, userID string, file io.Reader, size int64, contentType string) (string, error)
	DeleteFile(ctx context.Context, fileURL string) error
}

type StorageService struct {
	cfg         *config.Config
	s3Client    *s3.S3
	minioClient *minio.Client
	useMinIO    bool
	log         *logrus.Entry
}

func NewStorageService(cfg *config.Config, log *logrus.Entry) (*StorageService, error) {
	service := &StorageService{cfg: cfg, log: log}

	// Check if MinIO is configured
	if cfg.MinIOEndpoint != "" {
		service.useMinIO = true
		minioClient, err := minio.New(cfg.MinIOEndpoint, &minio.Options{
			Creds:  miniocreds.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
			Secure: cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create MinIO client: %w", err)
		}
		service.minioClient = minioClient
	} else {
		// Use AWS S3
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(cfg.AWSRegion),
			Credentials: credentials.NewStaticCredentials(
				cfg.AWSAccessKeyID,
				cfg.AWSSecretAccessKey,
				"",
			),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		service.s3Client = s3.New(sess)
	}

	return service, nil
}

// CheckImage rejects uploads that are too large or not an allowed image type.
func (s *StorageService) CheckImage(contentType string, size int64) error {
	if !lo.Contains(s.cfg.AllowedImageTypes, contentType) {
		return apperr.Invalid("unsupported image type %q", contentType)
	}
	if size <= 0 || size > s.cfg.MaxFileSize {
		return apperr.Invalid("image must be between 1 and %d bytes", s.cfg.MaxFileSize)
	}
	return nil
}

func (s *StorageService) UploadPhoto(ctx context.Context, userID string, file io.Reader, size int64, contentType string) (string, error) {
	if err := s.CheckImage(contentType, size); err != nil {
		return "", err
	}

	key := photoKey(userID, contentType)
	var (
		fileURL string
		err     error
	)
	if s.useMinIO {
		fileURL, err = s.uploadToMinIO(ctx, file, key, size, contentType)
	} else {
		fileURL, err = s.uploadToS3(ctx, file, key, contentType)
	}
	if err != nil {
		return "", apperr.Transient("upload photo", err)
	}

	s.log.WithField("user_id", userID).WithField("key", key).Info("Photo uploaded")
	return fileURL, nil
}

func (s *StorageService) DeleteFile(ctx context.Context, fileURL string) error {
	// Extract key from URL
	key := s.extractKeyFromURL(fileURL)
	if key == "" {
		return apperr.Invalid("invalid file URL")
	}

	var err error
	if s.useMinIO {
		err = s.minioClient.RemoveObject(ctx, s.cfg.S3Bucket, key, minio.RemoveObjectOptions{})
	} else {
		_, err = s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.cfg.S3Bucket),
			Key:    aws.String(key),
		})
	}
	if err != nil {
		return apperr.Transient("delete photo", err)
	}
	return nil
}

func (s *StorageService) uploadToS3(ctx context.Context, file io.Reader, key, contentType string) (string, error) {
	body, ok := file.(io.ReadSeeker)
	if !ok {
		return "", fmt.Errorf("S3 upload needs a seekable body")
	}

	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.S3Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return s.publicURL(key), nil
}

func (s *StorageService) uploadToMinIO(ctx context.Context, file io.Reader, key string, size int64, contentType string) (string, error) {
	_, err := s.minioClient.PutObject(ctx, s.cfg.S3Bucket, key, file, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to MinIO: %w", err)
	}

	return s.publicURL(key), nil
}

func (s *StorageService) publicURL(key string) string {
	if !s.useMinIO {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.S3Bucket, s.cfg.AWSRegion, key)
	}
	protocol := "http"
	if s.cfg.MinIOUseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, s.cfg.MinIOEndpoint, s.cfg.S3Bucket, key)
}

func (s *StorageService) extractKeyFromURL(fileURL string) string {
	u, err := url.Parse(fileURL)
	if err != nil || u.Host == "" {
		return ""
	}
	path := strings.TrimPrefix(u.Path, "/")

	if s.useMinIO {
		if u.Host != s.cfg.MinIOEndpoint {
			return ""
		}
		return strings.TrimPrefix(path, s.cfg.S3Bucket+"/")
	}
	if !strings.HasPrefix(u.Host, s.cfg.S3Bucket+".") || !strings.HasSuffix(u.Host, "amazonaws.com") {
		return ""
	}
	return path
}

func (s *StorageService) GeneratePresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	if s.useMinIO {
		u, err := s.minioClient.PresignedGetObject(ctx, s.cfg.S3Bucket, key, expiration, nil)
		if err != nil {
			return "", fmt.Errorf("failed to generate presigned URL: %w", err)
		}
		return u.String(), nil
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.cfg.S3Bucket),
		Key:    aws.String(key),
	})
	u, err := req.Presign(expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u, nil
}

func (s *StorageService) CreateBucket(ctx context.Context) error {
	if s.useMinIO {
		exists, err := s.minioClient.BucketExists(ctx, s.cfg.S3Bucket)
		if err != nil {
			return fmt.Errorf("failed to check bucket existence: %w", err)
		}
		if !exists {
			if err := s.minioClient.MakeBucket(ctx, s.cfg.S3Bucket, minio.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("failed to create MinIO bucket: %w", err)
			}
		}
		return nil
	}

	_, err := s.s3Client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.cfg.S3Bucket),
	})
	if err != nil {
		// Check if bucket already exists
		if !strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
			return fmt.Errorf("failed to create S3 bucket: %w", err)
		}
	}
	return nil
}

func photoKey(userID, contentType string) string {
	return fmt.Sprintf("photos/%s/%s%s", userID, uuid.NewString(), imageExtensions[contentType])
}
