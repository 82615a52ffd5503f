package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vodingest/internal/api"
	"vodingest/internal/ingest"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// okWhen maps a boolean check onto OK or the given failure kind.
func okWhen(ok bool, failure statusKind) statusKind {
	if ok {
		return statusOK
	}
	return failure
}

// jobStatusKind colours a job status: completed is OK, failed is an error,
// anything still moving is informational.
func jobStatusKind(status ingest.Status) statusKind {
	switch status {
	case ingest.StatusCompleted:
		return statusOK
	case ingest.StatusFailed:
		return statusError
	default:
		return statusInfo
	}
}

// statusLabel renders a job status for tables.
func statusLabel(status ingest.Status) string {
	return cases.Title(language.English).String(string(status))
}

// daemonHealth summarises whether the daemon is up and reachable.
func daemonHealth(status api.DaemonStatus, live bool) (statusKind, string) {
	if !status.Running {
		return statusWarn, "not running"
	}
	detail := "running"
	if status.PID > 0 {
		detail += " (pid " + strconv.Itoa(status.PID) + ")"
	}
	if !live {
		return statusWarn, detail + "; api unreachable, showing offline snapshot"
	}
	return statusOK, detail
}

// workerHealth reports pool size and occupancy. A running pool with no
// workers never drains the queue.
func workerHealth(wf api.WorkflowStatus) (statusKind, string) {
	if !wf.Running {
		return statusInfo, "idle"
	}
	detail := fmt.Sprintf("%d workers, %d in flight", wf.Workers, wf.InFlight)
	if wf.Workers == 0 {
		return statusError, detail
	}
	if wf.LastJobID != "" {
		detail += ", last job " + wf.LastJobID
	}
	return statusOK, detail
}

// queueHealth flags dead letters and expired leases, the two queue states
// that need an operator.
func queueHealth(q api.QueueStats) (statusKind, string) {
	detail := fmt.Sprintf("%d ready, %d delayed, %d leased", q.Ready, q.Delayed, q.Leased)
	switch {
	case q.Dead > 0:
		return statusWarn, fmt.Sprintf("%s; %d dead (see `vodingest queue list`)", detail, q.Dead)
	case q.Expired > 0:
		return statusWarn, fmt.Sprintf("%s; %d expired leases awaiting redelivery", detail, q.Expired)
	default:
		return statusOK, detail
	}
}

// dependencyHealth reports an external tool. Missing optional tools only warn.
func dependencyHealth(dep api.DependencyStatus) (statusKind, string) {
	if dep.Available {
		return statusOK, dep.Command
	}
	detail := dep.Command
	if dep.Detail != "" {
		detail = dep.Detail
	}
	if dep.Optional {
		return statusWarn, detail
	}
	return statusError, detail
}

// phaseLines renders readiness of the download, process and publish phases.
func phaseLines(phases []api.PhaseHealth, colorize bool) []string {
	lines := make([]string, 0, len(phases))
	for _, phase := range phases {
		detail := phase.Detail
		if detail == "" && phase.Ready {
			detail = "ready"
		}
		lines = append(lines, renderStatusLine(phase.Name, okWhen(phase.Ready, statusError), detail, colorize))
	}
	return lines
}
