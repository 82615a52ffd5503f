package api

import (
	"encoding/json"
	"testing"
	"time"

	"vodingest/internal/ingest"
	"vodingest/internal/queue"
	"vodingest/internal/stage"
	"vodingest/internal/workflow"
)

func TestFromJobOmitsInternalFields(t *testing.T) {
	view := FromJob(&ingest.Job{
		ID:         "j1",
		Status:     ingest.StatusFailed,
		FileType:   ingest.FileTypeAvatar,
		Error:      "cancelled",
		ResultURL:  "http://leftover",
		LeaseToken: "lease",
	})
	if view.ResultURL != "" {
		t.Fatalf("failed jobs must not expose a result url: %+v", view)
	}
	if view.Error != "cancelled" || view.FileType != "avatar" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.CreatedAt != "" {
		t.Fatalf("zero time should format empty, got %q", view.CreatedAt)
	}
	if FromJob(nil) != (JobView{}) {
		t.Fatal("nil job should convert to the zero view")
	}
}

func TestJobViewWireNames(t *testing.T) {
	view := FromJob(&ingest.Job{
		ID:        "j1",
		Status:    ingest.StatusCompleted,
		FileType:  ingest.FileTypeVideo,
		Progress:  100,
		ResultURL: "https://cdn.example.com/videos/j1/index.m3u8",
	})
	raw, err := json.Marshal(view)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["result_url"] != view.ResultURL || body["jobId"] != "j1" {
		t.Fatalf("unexpected wire body: %s", raw)
	}
	if _, ok := body["resultUrl"]; ok {
		t.Fatalf("result url must use the snake-case name: %s", raw)
	}
}

func TestFromStatusSummary(t *testing.T) {
	oldest := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	got := FromStatusSummary(workflow.StatusSummary{
		Running:  true,
		Workers:  2,
		InFlight: map[string]string{"j1": "w1"},
		Queue:    queue.Stats{Ready: 3, Dead: 1, OldestReady: oldest},
		Jobs:     map[ingest.Status]int{ingest.StatusPending: 3},
		PhaseHealth: map[string]stage.Health{
			"transcode": stage.Unhealthy("transcode", "ffmpeg missing"),
			"fetch":     stage.Healthy("fetch"),
		},
	})
	if !got.Running || got.Workers != 2 || got.InFlight != 1 {
		t.Fatalf("unexpected status: %+v", got)
	}
	if got.Queue.Ready != 3 || got.Queue.Dead != 1 || !ParseTime(got.Queue.OldestReady).Equal(oldest) {
		t.Fatalf("unexpected queue stats: %+v", got.Queue)
	}
	if got.JobCounts["pending"] != 3 {
		t.Fatalf("unexpected job counts: %v", got.JobCounts)
	}
	if len(got.PhaseHealth) != 2 || got.PhaseHealth[0].Name != "fetch" || got.PhaseHealth[1].Ready {
		t.Fatalf("unexpected phase health order: %+v", got.PhaseHealth)
	}
}
