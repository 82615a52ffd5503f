package deps

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"vodingest/internal/config"
)

// minStagingFree is the free space below which the staging volume is reported
// unavailable.
const minStagingFree = 1 << 30

// Requirements lists the external tools the configuration needs.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{
		{Name: "FFmpeg", Command: cfg.Tools.FFmpeg, Description: "Transcodes video into HLS"},
		{Name: "FFprobe", Command: cfg.Tools.FFprobe, Description: "Inspects media streams"},
		{Name: "yt-dlp", Command: cfg.Tools.YtDlp, Description: "Downloads from video hosting sites", Optional: true},
	}
	reqs = append(reqs, Requirement{
		Name:        "rclone",
		Command:     cfg.Storage.RcloneBinary,
		Description: "Copies artifacts to remote object storage",
		Optional:    cfg.Storage.Backend != config.StorageBackendRclone,
	})
	return reqs
}

// Check reports tool availability and staging free space.
func Check(cfg *config.Config) []Status {
	results := CheckBinaries(Requirements(cfg))
	return append(results, CheckFreeSpace("Staging volume", cfg.Paths.StagingDir, minStagingFree))
}

// MissingRequired returns the required dependencies that are unavailable.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}

// CheckFreeSpace reports whether the filesystem holding dir has at least
// minFree bytes available. A missing dir is checked at its nearest parent.
func CheckFreeSpace(name, dir string, minFree int64) Status {
	status := Status{Requirement: Requirement{Name: name, Command: dir, Description: "Free space for staged media", Optional: true}}
	probe := dir
	for probe != "" {
		if _, err := os.Stat(probe); err == nil {
			break
		}
		parent := parentDir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(probe, &stat); err != nil {
		status.Detail = fmt.Sprintf("statfs %s: %v", probe, err)
		return status
	}
	available := int64(stat.Bavail) * int64(stat.Bsize)
	status.Available = available >= minFree
	status.Detail = humanize.IBytes(uint64(available)) + " free"
	if !status.Available {
		status.Detail += ", below " + humanize.IBytes(uint64(minFree))
	}
	return status
}

func parentDir(p string) string {
	for i := len(p) - 1; i > 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	if len(p) > 0 && p[0] == '/' {
		return "/"
	}
	return p
}
