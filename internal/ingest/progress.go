package ingest

// Band maps a phase's own 0-100 progress onto the job-wide scale.
type Band struct {
	Start int
	End   int
}

// Job-wide progress bands. Completion alone reports 100.
var (
	BandDownload = Band{Start: 0, End: 45}
	BandProcess  = Band{Start: 45, End: 95}
	BandPublish  = Band{Start: 95, End: 99}
)

// Scale converts a phase percentage into the band.
func (b Band) Scale(percent float64) int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return b.Start + int(percent*float64(b.End-b.Start)/100)
}
