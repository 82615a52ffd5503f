package ingest

import "strings"

// FileType selects the validation and processing policy for a job.
type FileType string

const (
	FileTypeVideo  FileType = "video"
	FileTypePoster FileType = "poster"
	FileTypeAvatar FileType = "avatar"
)

// ParseFileType converts a raw string into a FileType.
func ParseFileType(raw string) (FileType, bool) {
	switch FileType(strings.ToLower(strings.TrimSpace(raw))) {
	case FileTypeVideo:
		return FileTypeVideo, true
	case FileTypePoster:
		return FileTypePoster, true
	case FileTypeAvatar:
		return FileTypeAvatar, true
	default:
		return "", false
	}
}

// Plural returns the object key namespace for the file type.
func (f FileType) Plural() string {
	switch f {
	case FileTypeVideo:
		return "videos"
	case FileTypePoster:
		return "posters"
	case FileTypeAvatar:
		return "avatars"
	default:
		return "files"
	}
}

// IsImage reports whether the file type carries a still image.
func (f FileType) IsImage() bool {
	return f == FileTypePoster || f == FileTypeAvatar
}

// Priority orders queue work. Small image jobs run ahead of video.
func (f FileType) Priority() int {
	switch f {
	case FileTypeAvatar:
		return 20
	case FileTypePoster:
		return 10
	default:
		return 0
	}
}
