package fetch

import (
	"context"
	"errors"
	"path/filepath"

	"vodingest/internal/ingest"
	"vodingest/internal/objectstore"
	"vodingest/internal/services"
)

func (f *Fetcher) fetchUpload(ctx context.Context, job *ingest.Job, destDir string, progress ProgressFunc) (Result, error) {
	if f.uploads == nil {
		return Result{}, services.Wrap(services.ErrFatal, component, "upload", "no upload store configured", nil)
	}
	key := job.Source.UploadKey
	rc, info, err := f.uploads.Open(ctx, key)
	if errors.Is(err, objectstore.ErrObjectNotFound) {
		return Result{}, services.Wrap(services.ErrFatal, component, "upload", "uploaded object "+key+" not found", err)
	}
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, component, "upload", "open uploaded object", err)
	}
	defer rc.Close()

	limit := job.Policy.MaxBytes
	if limit > 0 && info.Size > limit {
		return Result{}, oversize(info.Size, limit)
	}
	path := filepath.Join(destDir, sourceName(key))
	n, err := copyWithProgress(ctx, rc, path, info.Size, limit, progress)
	if err != nil {
		if services.Kind(err) == services.KindFatal || errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		return Result{}, services.Wrap(services.ErrTransient, component, "upload", "copy uploaded object", err)
	}
	return Result{Path: path, Bytes: n, Method: "upload"}, nil
}
