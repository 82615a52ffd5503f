package objectstore_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vodingest/internal/ingest"
	"vodingest/internal/objectstore"
	"vodingest/internal/services"
	"vodingest/internal/testsupport"
)

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func newGateway(t *testing.T, clock func() time.Time) (*objectstore.Gateway, *objectstore.LocalBucket) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Limits.PosterMaxBytes = 1024
	bucket := objectstore.NewLocalBucket(cfg.Paths.StorageDir)
	gw := objectstore.New(bucket, objectstore.NewSigner(cfg.Storage.SigningSecret, clock), objectstore.Options{
		PublicBaseURL: "https://cdn.example.com/media/",
		UploadBaseURL: "https://ingest.example.com",
		UploadTTL:     10 * time.Minute,
		Policies:      objectstore.PoliciesFromConfig(cfg),
		Clock:         clock,
	})
	return gw, bucket
}

func TestSignerRoundTripAndTamper(t *testing.T) {
	now := fixedNow
	signer := objectstore.NewSigner("0123456789abcdef", func() time.Time { return now })
	grant := objectstore.UploadGrant{Key: "posters/u1/x/1-a-p.png", ContentType: "image/png", MaxBytes: 512, ExpiresAt: now.Add(time.Minute)}
	token := signer.Sign(grant)

	got, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got.Key != grant.Key || got.MaxBytes != 512 || got.ContentType != "image/png" {
		t.Fatalf("unexpected grant: %+v", got)
	}

	other := objectstore.NewSigner("fedcba9876543210", func() time.Time { return now })
	if _, err := other.Verify(token); !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected forbidden for foreign secret, got %v", err)
	}
	if _, err := signer.Verify(token[:len(token)-2] + "xx"); !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected forbidden for tampered signature, got %v", err)
	}
	if _, err := signer.Verify("garbage"); !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected forbidden for malformed token, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := signer.Verify(token); err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestPolicyCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	policies := objectstore.PoliciesFromConfig(cfg)
	video, err := policies.For(ingest.FileTypeVideo)
	if err != nil {
		t.Fatalf("For(video) failed: %v", err)
	}
	poster, _ := policies.For(ingest.FileTypePoster)

	tests := []struct {
		name      string
		policy    objectstore.Policy
		filename  string
		ctype     string
		size      int64
		wantField string
	}{
		{"valid video", video, "clip.MP4", "video/mp4", 1 << 20, ""},
		{"content type params", poster, "p.png", "image/png; charset=binary", 100, ""},
		{"bad extension", video, "clip.exe", "video/mp4", 100, "filename"},
		{"bad mime", poster, "p.png", "application/pdf", 100, "contentType"},
		{"oversize", poster, "p.png", "image/png", cfg.Limits.PosterMaxBytes + 1, "fileSize"},
		{"empty", poster, "p.png", "image/png", 0, "fileSize"},
		{"missing name", poster, "", "image/png", 10, "filename"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Check(tt.filename, tt.ctype, tt.size)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Check failed: %v", err)
				}
				return
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if services.Field(err) != tt.wantField {
				t.Fatalf("field = %q, want %q (%v)", services.Field(err), tt.wantField, err)
			}
		})
	}

	if _, err := policies.For("audio"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
	if err := poster.CheckSize(1 << 30); err == nil || !strings.Contains(err.Error(), "GiB") {
		t.Fatalf("expected humanized size in message, got %v", err)
	}
}

func TestResolveKey(t *testing.T) {
	key := objectstore.ResolveKey("User 7", ingest.FileTypeVideo, "My Trailer.MP4", "The Matrix", fixedNow)
	again := objectstore.ResolveKey("User 7", ingest.FileTypeVideo, "My Trailer.MP4", "The Matrix", fixedNow)
	if key != again {
		t.Fatalf("expected deterministic key, got %q and %q", key, again)
	}
	if !strings.HasPrefix(key, "videos/user_7/the-matrix/") || !strings.HasSuffix(key, "-my-trailer.mp4") {
		t.Fatalf("unexpected key layout: %q", key)
	}
	later := objectstore.ResolveKey("User 7", ingest.FileTypeVideo, "My Trailer.MP4", "The Matrix", fixedNow.Add(time.Nanosecond))
	if later == key {
		t.Fatal("expected different keys for different instants")
	}
	noTarget := objectstore.ResolveKey("u", ingest.FileTypeAvatar, "me.png", "", fixedNow)
	if !strings.HasPrefix(noTarget, "avatars/u/unassigned/") {
		t.Fatalf("unexpected untargeted key: %q", noTarget)
	}
	if err := objectstore.ValidateKey(key); err != nil {
		t.Fatalf("resolved key failed validation: %v", err)
	}
	for _, bad := range []string{"", "/abs", "a/../b", "a//b", `a\b`} {
		if err := objectstore.ValidateKey(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestRequestUploadEnforcesPolicy(t *testing.T) {
	gw, _ := newGateway(t, func() time.Time { return fixedNow })
	ctx := context.Background()

	key := objectstore.ResolveKey("u1", ingest.FileTypePoster, "cover.png", "show", fixedNow)
	ticket, err := gw.RequestUpload(ctx, key, "image/png", 512, 0)
	if err != nil {
		t.Fatalf("RequestUpload failed: %v", err)
	}
	if !strings.HasPrefix(ticket.UploadURL, "https://ingest.example.com/uploads/") {
		t.Fatalf("unexpected upload url %q", ticket.UploadURL)
	}
	if ticket.FileURL != "https://cdn.example.com/media/"+key {
		t.Fatalf("unexpected file url %q", ticket.FileURL)
	}
	if ticket.ExpiresIn != 10*time.Minute || !ticket.ExpiresAt.Equal(fixedNow.Add(10*time.Minute)) {
		t.Fatalf("unexpected expiry: %s %s", ticket.ExpiresIn, ticket.ExpiresAt)
	}

	if _, err := gw.RequestUpload(ctx, key, "video/mp4", 512, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for wrong content type, got %v", err)
	}
	if _, err := gw.RequestUpload(ctx, key, "image/png", 4096, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for oversize, got %v", err)
	}
	if _, err := gw.RequestUpload(ctx, "misc/file.png", "image/png", 10, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown namespace, got %v", err)
	}
	if _, err := gw.RequestUpload(ctx, key, "image/png", 10, 48*time.Hour); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for long ttl, got %v", err)
	}
}

func uploadToken(t *testing.T, ticket objectstore.UploadTicket) string {
	t.Helper()
	_, token, ok := strings.Cut(ticket.UploadURL, "/uploads/")
	if !ok {
		t.Fatalf("upload url %q has no token", ticket.UploadURL)
	}
	return token
}

func TestAuthorizeAndAcceptUpload(t *testing.T) {
	now := fixedNow
	gw, bucket := newGateway(t, func() time.Time { return now })
	ctx := context.Background()

	ticket, err := gw.Authorize(ctx, "u1", objectstore.UploadRequest{
		Filename: "Cover Art.PNG", FileSize: 64, FileType: ingest.FileTypePoster, ContentType: "image/png", TargetName: "Show",
	})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if !strings.HasPrefix(ticket.Key, "posters/u1/show/") {
		t.Fatalf("unexpected key %q", ticket.Key)
	}

	token := uploadToken(t, ticket)
	info, err := gw.AcceptUpload(ctx, token, "image/png", bytes.NewReader(make([]byte, 64)))
	if err != nil {
		t.Fatalf("AcceptUpload failed: %v", err)
	}
	if info.Size != 64 || info.Key != ticket.Key {
		t.Fatalf("unexpected object info: %+v", info)
	}
	exists, err := gw.Exists(ctx, ticket.Key)
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v", exists, err)
	}

	_, err = gw.AcceptUpload(ctx, token, "image/png", bytes.NewReader(make([]byte, 65)))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected oversize body to be rejected, got %v", err)
	}
	if exists, _ := gw.Exists(ctx, ticket.Key); exists {
		t.Fatal("oversize upload must not leave an object behind")
	}
	entries, _ := os.ReadDir(filepath.Dir(mustPath(t, bucket, ticket.Key)))
	if len(entries) != 0 {
		t.Fatalf("expected no temp files, found %d entries", len(entries))
	}

	if _, err := gw.AcceptUpload(ctx, token, "image/jpeg", bytes.NewReader([]byte("x"))); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected content type mismatch, got %v", err)
	}

	now = now.Add(time.Hour)
	if _, err := gw.AcceptUpload(ctx, token, "image/png", bytes.NewReader([]byte("x"))); !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected expired credential to be forbidden, got %v", err)
	}
	if _, err := gw.Authorize(ctx, "u1", objectstore.UploadRequest{Filename: "a.png", FileSize: 1, FileType: "audio", ContentType: "image/png"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
}

func mustPath(t *testing.T, bucket *objectstore.LocalBucket, key string) string {
	t.Helper()
	p, err := bucket.Path(key)
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	return p
}

func TestDeleteIsIdempotentAndPublishDir(t *testing.T) {
	gw, _ := newGateway(t, func() time.Time { return fixedNow })
	ctx := context.Background()

	if err := gw.Delete(ctx, "videos/u/x/missing.mp4"); err != nil {
		t.Fatalf("Delete of missing key failed: %v", err)
	}

	src := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(src, "index.m3u8"), 32)
	testsupport.WriteFile(t, filepath.Join(src, "seg", "000.ts"), 128)

	keys, err := gw.PublishDir(ctx, src, "videos/u/x/job-1")
	if err != nil {
		t.Fatalf("PublishDir failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
	info, err := gw.Stat(ctx, "videos/u/x/job-1/seg/000.ts")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size != 128 || info.ContentType != "video/mp2t" {
		t.Fatalf("unexpected info: %+v", info)
	}

	rc, _, err := gw.Open(ctx, "videos/u/x/job-1/index.m3u8")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if len(data) != 32 {
		t.Fatalf("unexpected object length %d", len(data))
	}

	if err := gw.DeletePrefix(ctx, "videos/u/x/job-1"); err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}
	if _, err := gw.Stat(ctx, "videos/u/x/job-1/index.m3u8"); !errors.Is(err, objectstore.ErrObjectNotFound) {
		t.Fatalf("expected not found after prefix delete, got %v", err)
	}
	if err := gw.DeletePrefix(ctx, "videos/u/x/job-1"); err != nil {
		t.Fatalf("second DeletePrefix failed: %v", err)
	}
}

func TestRcloneBucketMapsMissingObjects(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	script := testsupport.WriteScript(t, cfg, "rclone", `
case "$1" in
  version) echo "rclone v1.66.0" ;;
  lsd) exit 0 ;;
  lsjson) echo "directory not found" >&2; exit 3 ;;
  deletefile) echo "object not found" >&2; exit 4 ;;
  purge) echo "directory not found" >&2; exit 3 ;;
  rcat) cat > /dev/null ;;
  *) echo "unexpected $1" >&2; exit 1 ;;
esac`)
	bucket := objectstore.NewRcloneBucket(objectstore.RcloneConfig{Remote: "remote", BasePath: "bucket/vod", Binary: script}, nil)
	ctx := context.Background()

	if err := bucket.Check(ctx); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if _, err := bucket.Stat(ctx, "videos/a.mp4"); !errors.Is(err, objectstore.ErrObjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := bucket.Delete(ctx, "videos/a.mp4"); err != nil {
		t.Fatalf("Delete of missing object failed: %v", err)
	}
	if err := bucket.DeletePrefix(ctx, "videos/job"); err != nil {
		t.Fatalf("DeletePrefix of missing prefix failed: %v", err)
	}
	n, err := bucket.Put(ctx, "videos/a.mp4", strings.NewReader("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Put = %d, %v", n, err)
	}
}

func TestUploadedName(t *testing.T) {
	key := objectstore.ResolveKey("u1", ingest.FileTypeVideo, "pilot-cut.mp4", "show", fixedNow)
	name := objectstore.UploadedName(key)
	if name == "" || strings.Count(name, "-") != strings.Count(key[strings.LastIndex(key, "/")+1:], "-")-2 {
		t.Fatalf("unexpected name %q from %q", name, key)
	}
	if !strings.HasSuffix(key, "-"+name) {
		t.Fatalf("name %q is not the tail of %q", name, key)
	}

	cases := map[string]string{
		"videos/alice/unassigned/1-abcd-clip.mp4": "clip.mp4",
		"videos/alice/show/17-0f-my-clip.mp4":     "my-clip.mp4",
		"videos/alice/show/plain.mp4":             "plain.mp4",
		"videos/alice/show/x1-abcd-clip.mp4":      "x1-abcd-clip.mp4",
		"videos/alice/show/1-zz-clip.mp4":         "1-zz-clip.mp4",
	}
	for key, want := range cases {
		if got := objectstore.UploadedName(key); got != want {
			t.Fatalf("UploadedName(%q) = %q, want %q", key, got, want)
		}
	}
}
