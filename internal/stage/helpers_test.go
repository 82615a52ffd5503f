package stage_test

import (
	"context"
	"errors"
	"testing"

	"vodingest/internal/services"
	"vodingest/internal/stage"
)

func TestIsRetryableOutput(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"ERROR: HTTP Error 429: Too Many Requests", true},
		{"ERROR: Unable to download webpage: timed out", true},
		{"ERROR: HTTP Error 503: Service Unavailable", true},
		{"ERROR: Video unavailable. This video is private", false},
		{"Unsupported URL: https://example.com", false},
	}
	for _, tt := range tests {
		if got := stage.IsRetryableOutput(tt.text); got != tt.want {
			t.Fatalf("IsRetryableOutput(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestToolFailureClassification(t *testing.T) {
	cause := errors.New("exit status 1")

	err := stage.ToolFailure(context.Background(), "fetch", "yt-dlp", "HTTP Error 429", cause)
	if !services.IsRetryable(err) {
		t.Fatalf("expected retryable, got %v", err)
	}
	err = stage.ToolFailure(context.Background(), "fetch", "yt-dlp", "This video is private", cause)
	if services.IsRetryable(err) || !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected fatal tool error, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()
	err = stage.ToolFailure(ctx, "transcode", "ffmpeg", "", cause)
	if !errors.Is(err, services.ErrTimeout) || !services.IsRetryable(err) {
		t.Fatalf("expected retryable timeout, got %v", err)
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	if err := stage.ToolFailure(cancelled, "fetch", "yt-dlp", "", cause); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

type fixedChecker stage.Health

func (f fixedChecker) HealthCheck(context.Context) stage.Health { return stage.Health(f) }

func TestCheckAll(t *testing.T) {
	results := stage.CheckAll(context.Background(),
		fixedChecker(stage.Healthy("fetch")),
		nil,
		fixedChecker(stage.Unhealthy("transcode", "ffmpeg missing")),
	)
	if len(results) != 2 || !results[0].Ready || results[1].Ready || results[1].Detail != "ffmpeg missing" {
		t.Fatalf("unexpected results: %+v", results)
	}
}
