package transcode

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"vodingest/internal/ingest"
	"vodingest/internal/services"
)

var canonicalExt = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"gif":  ".gif",
}

// processImage verifies src decodes as a supported image within the pixel
// bound and copies it to <fileType><ext>.
func (p *Processor) processImage(ctx context.Context, fileType ingest.FileType, src, outDir string) (Artifact, error) {
	in, err := os.Open(src)
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrTransient, component, "image", "open source", err)
	}
	defer in.Close()

	cfg, format, err := image.DecodeConfig(in)
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrFatal, component, "image", "source is not a jpeg, png or gif image", err)
	}
	ext, ok := canonicalExt[format]
	if !ok {
		return Artifact{}, services.Wrap(services.ErrFatal, component, "image", fmt.Sprintf("unsupported image format %q", format), nil)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > p.opts.MaxImagePixels {
		return Artifact{}, services.Wrap(services.ErrFatal, component, "image",
			fmt.Sprintf("image dimensions %dx%d out of range", cfg.Width, cfg.Height), nil)
	}
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return Artifact{}, services.Wrap(services.ErrTransient, component, "image", "rewind source", err)
	}
	if _, _, err := image.Decode(in); err != nil {
		return Artifact{}, services.Wrap(services.ErrFatal, component, "image", "image data is corrupt", err)
	}
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}

	name := string(fileType) + ext
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return Artifact{}, services.Wrap(services.ErrTransient, component, "image", "rewind source", err)
	}
	out, err := os.Create(filepath.Join(outDir, name))
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrTransient, component, "image", "create output", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return Artifact{}, services.Wrap(services.ErrTransient, component, "image", "copy image", err)
	}
	if err := out.Close(); err != nil {
		return Artifact{}, services.Wrap(services.ErrTransient, component, "image", "close output", err)
	}
	return Artifact{Entry: name}, nil
}
