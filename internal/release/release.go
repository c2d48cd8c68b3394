// Package release serves installer artifacts. Builds live in
// S3-compatible storage; downloads hand out short-lived presigned URLs
// instead of proxying bytes through the API.
package release

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/homeguard/internal/model"
)

// URLTTL is how long a presigned installer URL stays valid.
const URLTTL = 15 * time.Minute

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

type presigner interface {
	PresignGetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Service resolves installer downloads to presigned URLs.
type Service struct {
	cfg       S3Config
	presigner presigner
	// Version is the current app release served to new downloads.
	Version string
}

func NewService(cfg S3Config, version string) *Service {
	svc := &Service{cfg: cfg, Version: version}
	if cfg.Bucket != "" && cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts := s3.Options{
			Region:       cfg.Region,
			Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
			UsePathStyle: true,
		}
		if cfg.Endpoint != "" {
			opts.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		svc.presigner = s3.NewPresignClient(s3.New(opts))
	}
	return svc
}

// Configured reports whether artifact storage credentials are present.
func (s *Service) Configured() bool {
	return s.presigner != nil
}

// artifactKey maps a platform and version onto the stored object key.
func artifactKey(platform, version string) string {
	ext := map[string]string{
		model.PlatformWindows: "msi",
		model.PlatformMacOS:   "dmg",
		model.PlatformLinux:   "AppImage",
		model.PlatformAndroid: "apk",
		model.PlatformIOS:     "ipa",
	}[platform]
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("installers/%s/homeguard-%s-%s.%s", platform, version, platform, ext)
}

// InstallerURL returns a presigned download URL for the current release
// on the given platform.
func (s *Service) InstallerURL(ctx context.Context, platform string) (string, error) {
	if s.presigner == nil {
		return "", fmt.Errorf("release storage not configured")
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(artifactKey(platform, s.Version)),
	}, func(o *s3.PresignOptions) {
		o.Expires = URLTTL
	})
	if err != nil {
		return "", fmt.Errorf("presign installer: %w", err)
	}
	return req.URL, nil
}
