package release

import (
	"context"
	"strings"
	"testing"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/homeguard/internal/model"
)

type fakePresigner struct {
	gotKey string
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.gotKey = *input.Key
	return &v4.PresignedHTTPRequest{URL: "https://storage.test/" + *input.Key + "?sig=x"}, nil
}

func TestArtifactKey(t *testing.T) {
	tests := []struct {
		platform string
		want     string
	}{
		{model.PlatformWindows, "installers/windows/homeguard-2.1.0-windows.msi"},
		{model.PlatformMacOS, "installers/macos/homeguard-2.1.0-macos.dmg"},
		{model.PlatformLinux, "installers/linux/homeguard-2.1.0-linux.AppImage"},
		{"weird", "installers/weird/homeguard-2.1.0-weird.bin"},
	}
	for _, tt := range tests {
		if got := artifactKey(tt.platform, "2.1.0"); got != tt.want {
			t.Errorf("artifactKey(%q) = %q, want %q", tt.platform, got, tt.want)
		}
	}
}

func TestInstallerURL(t *testing.T) {
	fake := &fakePresigner{}
	svc := &Service{cfg: S3Config{Bucket: "builds"}, presigner: fake, Version: "2.1.0"}

	url, err := svc.InstallerURL(context.Background(), model.PlatformWindows)
	if err != nil {
		t.Fatalf("installer url: %v", err)
	}
	if !strings.Contains(url, "homeguard-2.1.0-windows.msi") {
		t.Errorf("url = %q", url)
	}
	if fake.gotKey != "installers/windows/homeguard-2.1.0-windows.msi" {
		t.Errorf("key = %q", fake.gotKey)
	}
}

func TestInstallerURLUnconfigured(t *testing.T) {
	svc := NewService(S3Config{}, "2.1.0")
	if svc.Configured() {
		t.Error("empty config should read unconfigured")
	}
	if _, err := svc.InstallerURL(context.Background(), model.PlatformWindows); err == nil {
		t.Error("expected error when storage unconfigured")
	}
}
