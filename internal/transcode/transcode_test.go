package transcode_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vodingest/internal/config"
	"vodingest/internal/ingest"
	"vodingest/internal/services"
	"vodingest/internal/testsupport"
	"vodingest/internal/transcode"
)

const probeVideo = `cat <<'JSON'
{"streams":[{"index":0,"codec_type":"video","codec_name":"h264","width":640,"height":360},{"index":1,"codec_type":"audio","codec_name":"aac"}],"format":{"duration":"4.0"}}
JSON`

const ffmpegHLS = `for a; do last=$a; done
dir=$(dirname "$last")
printf '#EXTM3U\n#EXTINF:4.0,\nsegment_00000.ts\n#EXT-X-ENDLIST\n' > "$last"
printf 'ts' > "$dir/segment_00000.ts"
echo out_time_us=2000000
echo progress=continue
echo out_time_us=4000000
echo progress=end`

func newProcessor(t *testing.T, cfg *config.Config, ffprobeBody, ffmpegBody string) *transcode.Processor {
	t.Helper()
	return transcode.New(transcode.Options{
		FFprobeBinary: testsupport.WriteScript(t, cfg, "ffprobe", ffprobeBody),
		FFmpegBinary:  testsupport.WriteScript(t, cfg, "ffmpeg", ffmpegBody),
	})
}

func TestProcessVideoProducesHLS(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	proc := newProcessor(t, cfg, probeVideo, ffmpegHLS)
	src := filepath.Join(t.TempDir(), "source.mp4")
	testsupport.WriteFile(t, src, 128)
	outDir := filepath.Join(t.TempDir(), "out")

	var seen []float64
	art, err := proc.Process(context.Background(), &ingest.Job{ID: "job-1", FileType: ingest.FileTypeVideo}, src, outDir, func(p float64) {
		seen = append(seen, p)
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if art.Entry != transcode.PlaylistName || art.DurationSeconds != 4 {
		t.Fatalf("unexpected artifact: %+v", art)
	}
	if len(art.Files) != 2 || art.Files[0] != "index.m3u8" || art.Files[1] != "segment_00000.ts" {
		t.Fatalf("unexpected files: %v", art.Files)
	}
	if len(seen) < 2 || seen[0] != 50 || seen[len(seen)-1] != 100 {
		t.Fatalf("unexpected progress: %v", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress went backwards: %v", seen)
		}
	}
}

func TestProcessVideoWithoutVideoStreamIsFatal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	proc := newProcessor(t, cfg, `echo '{"streams":[{"index":0,"codec_type":"audio"}],"format":{"duration":"3"}}'`, "exit 1")
	src := filepath.Join(t.TempDir(), "source.mp4")
	testsupport.WriteFile(t, src, 16)

	_, err := proc.Process(context.Background(), &ingest.Job{FileType: ingest.FileTypeVideo}, src, t.TempDir(), nil)
	if !errors.Is(err, services.ErrFatal) || services.IsRetryable(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestProcessVideoFFmpegFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	proc := newProcessor(t, cfg, probeVideo, `echo "Conversion failed: invalid data" >&2; exit 1`)
	src := filepath.Join(t.TempDir(), "source.mp4")
	testsupport.WriteFile(t, src, 16)

	_, err := proc.Process(context.Background(), &ingest.Job{FileType: ingest.FileTypeVideo}, src, t.TempDir(), nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if d := services.Details(err); !strings.Contains(d.Message, "Conversion failed: invalid data") {
		t.Fatalf("expected stderr in message, got %q", d.Message)
	}
}

func TestProcessVideoMissingSegment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	proc := newProcessor(t, cfg, probeVideo, `for a; do last=$a; done
printf '#EXTM3U\nsegment_00000.ts\n' > "$last"`)
	src := filepath.Join(t.TempDir(), "source.mp4")
	testsupport.WriteFile(t, src, 16)

	_, err := proc.Process(context.Background(), &ingest.Job{FileType: ingest.FileTypeVideo}, src, t.TempDir(), nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected verification failure, got %v", err)
	}
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestProcessImageCopiesWithCanonicalName(t *testing.T) {
	proc := transcode.New(transcode.Options{})
	data := encodePNG(t, 32, 16)
	src := filepath.Join(t.TempDir(), "source.jpg")
	if err := os.WriteFile(src, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	outDir := filepath.Join(t.TempDir(), "out")

	art, err := proc.Process(context.Background(), &ingest.Job{FileType: ingest.FileTypePoster}, src, outDir, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if art.Entry != "poster.png" || len(art.Files) != 1 {
		t.Fatalf("unexpected artifact: %+v", art)
	}
	got, err := os.ReadFile(filepath.Join(outDir, "poster.png"))
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("expected byte-identical copy, err=%v", err)
	}
}

func TestProcessImageRejectsBadInput(t *testing.T) {
	full := encodePNG(t, 64, 64)
	tests := []struct {
		name string
		data []byte
		opts transcode.Options
	}{
		{"not an image", []byte("<html>nope</html>"), transcode.Options{}},
		{"truncated", full[:len(full)/2], transcode.Options{}},
		{"too many pixels", full, transcode.Options{MaxImagePixels: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := filepath.Join(t.TempDir(), "source.png")
			if err := os.WriteFile(src, tt.data, 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := transcode.New(tt.opts).Process(context.Background(), &ingest.Job{FileType: ingest.FileTypeAvatar}, src, t.TempDir(), nil)
			if !errors.Is(err, services.ErrFatal) {
				t.Fatalf("expected fatal error, got %v", err)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	proc := transcode.New(transcode.Options{FFmpegBinary: "definitely-not-ffmpeg-xyz"})
	if h := proc.HealthCheck(context.Background()); h.Ready {
		t.Fatalf("expected unhealthy, got %+v", h)
	}
}
