package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strconv"
	"strings"
	"time"

	"vodingest/internal/ingest"
	"vodingest/internal/textutil"
)

const unassignedTarget = "unassigned"

// ResolveKey derives the object key for an upload:
//
//	<type-plural>/<owner>/<target-slug>/<unix-nanos>-<digest>-<sanitized-name>
//
// The result depends only on its inputs. The timestamp keeps retries from
// colliding with earlier attempts; the digest separates same-instant uploads
// of different files.
func ResolveKey(ownerID string, fileType ingest.FileType, filename, targetName string, now time.Time) string {
	owner := textutil.SanitizeToken(ownerID)
	target := textutil.Slug(targetName)
	if target == "" {
		target = unassignedTarget
	}
	name := textutil.SanitizeFileName(filename)
	nanos := strconv.FormatInt(now.UnixNano(), 10)

	h := sha256.Sum256([]byte(ownerID + "\x00" + string(fileType) + "\x00" + targetName + "\x00" + filename + "\x00" + nanos))
	return path.Join(fileType.Plural(), owner, target, nanos+"-"+hex.EncodeToString(h[:4])+"-"+name)
}

// UploadedName recovers the sanitized file name from a key built by
// ResolveKey. Keys of any other shape yield their last path element.
func UploadedName(key string) string {
	base := path.Base(key)
	parts := strings.SplitN(base, "-", 3)
	if len(parts) != 3 || parts[2] == "" || !isDigits(parts[0]) || !isHex(parts[1]) {
		return base
	}
	return parts[2]
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	_, err := hex.DecodeString(strings.Repeat("0", len(s)%2) + s)
	return err == nil
}

// ArtifactPrefix derives the directory a job's published artifacts live under.
func ArtifactPrefix(job *ingest.Job, now time.Time) string {
	return ResolveKey(job.OwnerID, job.FileType, job.ID, job.Target.Name(), now)
}
