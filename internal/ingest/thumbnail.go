package ingest

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// MagickRenderer rasterizes the first page of a document through the
// ImageMagick binary. Temp files are scoped to a single attempt and removed
// on every exit path, including mid-conversion failures.
type MagickRenderer struct {
	bin string
}

func NewMagickRenderer(bin string) *MagickRenderer {
	if bin == "" {
		bin = "magick"
	}
	return &MagickRenderer{bin: bin}
}

// Render returns the first page as a base64 JPEG data URL. Errors are
// returned for the caller to log; the pipeline treats them as "no thumbnail".
func (m *MagickRenderer) Render(ctx context.Context, raw []byte) (string, error) {
	in, err := os.CreateTemp("", "memvault_doc_*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp pdf: %w", err)
	}
	defer os.Remove(in.Name())

	if _, err := in.Write(raw); err != nil {
		in.Close()
		return "", fmt.Errorf("write temp pdf: %w", err)
	}
	if err := in.Close(); err != nil {
		return "", fmt.Errorf("close temp pdf: %w", err)
	}

	out, err := os.CreateTemp("", "memvault_thumb_*.jpeg")
	if err != nil {
		return "", fmt.Errorf("create temp thumbnail: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	// [0] selects the first page.
	cmd := exec.CommandContext(ctx, m.bin,
		in.Name()+"[0]",
		"-background", "white",
		"-flatten",
		"-resize", "400x533",
		"-quality", "85",
		outPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("imagemagick: %w: %s", err, output)
	}

	img, err := os.ReadFile(outPath)
	if err != nil {
		return "", fmt.Errorf("read thumbnail: %w", err)
	}
	if len(img) == 0 {
		return "", fmt.Errorf("imagemagick produced an empty thumbnail")
	}

	slog.DebugContext(ctx, "thumbnail rendered", "bytes", len(img))
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img), nil
}
