package ffprobe_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"vodingest/internal/media/ffprobe"
	"vodingest/internal/services"
	"vodingest/internal/testsupport"
)

func TestResultHelpers(t *testing.T) {
	result := ffprobe.Result{
		Streams: []ffprobe.Stream{
			{Index: 0, CodecType: "video", CodecName: "mjpeg", Width: 300, Height: 300},
			{Index: 1, CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080},
			{Index: 2, CodecType: "audio"},
			{Index: 3, CodecType: "audio"},
		},
		Format: ffprobe.Format{Duration: "123.45"},
	}
	v, ok := result.VideoStream()
	if !ok || v.Index != 1 {
		t.Fatalf("expected h264 stream, got %+v ok=%v", v, ok)
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if err := result.RequireVideo(); err != nil {
		t.Fatalf("RequireVideo: %v", err)
	}
}

func TestDurationFallsBackToStream(t *testing.T) {
	result := ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "video", CodecName: "vp9", Duration: "12.5", Width: 1, Height: 1}},
		Format:  ffprobe.Format{Duration: "N/A"},
	}
	if result.DurationSeconds() != 12.5 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if (ffprobe.Result{Format: ffprobe.Format{Duration: "bad"}}).DurationSeconds() != 0 {
		t.Fatal("expected zero for unparseable duration")
	}
}

func TestRequireVideoRejectsAudioOnly(t *testing.T) {
	result := ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "audio"}}}
	err := result.RequireVideo()
	if !errors.Is(err, services.ErrFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestInspectRunsBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	bin := testsupport.WriteScript(t, cfg, "ffprobe", `cat <<'JSON'
{"streams":[{"index":0,"codec_type":"video","codec_name":"h264","width":640,"height":360}],"format":{"duration":"4.000000","format_name":"mov,mp4"}}
JSON`)
	result, err := ffprobe.Inspect(context.Background(), bin, filepath.Join(t.TempDir(), "source.mp4"))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if result.DurationSeconds() != 4 || result.Format.FormatName != "mov,mp4" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestInspectFailureIsExternalTool(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	bin := testsupport.WriteScript(t, cfg, "ffprobe", `echo "Invalid data found when processing input" >&2; exit 1`)
	_, err := ffprobe.Inspect(context.Background(), bin, "/tmp/garbage.bin")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if services.IsRetryable(err) {
		t.Fatal("corrupt input must not be retryable")
	}
}
