// Package watermark renders personalized copies of report PDFs. The
// canonical file is only ever read; every output lands in the temp area.
package watermark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/oklog/ulid/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/config"
	"github.com/ManuelReschke/ReportFox/internal/pkg/metrics"
	"github.com/ManuelReschke/ReportFox/internal/pkg/storage"
)

var (
	ErrSourceMissing = errors.New("report source file is missing")
	ErrRenderFailed  = errors.New("report rendering failed")
)

// centered on every page, 30% opacity
const stampDescription = "position:c, scalefactor:0.8 rel, opacity:0.3, rotation:0"

const DefaultTemplate = "Licensed to: {user_name} | {user_email}"

func init() {
	api.DisableConfigDir()
}

// Renderer produces watermarked copies of reports for one viewer at a time.
type Renderer struct {
	store    storage.Store
	tempDir  string
	template string
	enabled  bool
}

func NewRenderer(store storage.Store, cfg config.WatermarkConfig, tempDir string) *Renderer {
	tpl := cfg.Template
	if strings.TrimSpace(tpl) == "" {
		tpl = DefaultTemplate
	}
	return &Renderer{store: store, tempDir: tempDir, template: tpl, enabled: cfg.Enabled}
}

// Text fills the template for viewer.
func (r *Renderer) Text(viewer *models.User) string {
	return strings.NewReplacer("{user_name}", viewer.Name, "{user_email}", viewer.Email).Replace(r.template)
}

// Render writes a personalized copy of report to the temp dir and returns
// its path. The caller owns the file and should remove it after streaming.
func (r *Renderer) Render(ctx context.Context, report *models.Report, viewer *models.User) (string, error) {
	start := time.Now()

	src, err := r.readSource(ctx, report.SourceRef)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.tempDir, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	out := filepath.Join(r.tempDir, OutputName(report.SourceRef))

	if !r.enabled {
		if err := os.WriteFile(out, src, 0600); err != nil {
			return "", fmt.Errorf("%w: %v", ErrRenderFailed, err)
		}
		return out, nil
	}

	if err := r.stamp(src, out, r.Text(viewer)); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	metrics.RenderDuration.Observe(time.Since(start).Seconds())
	log.Debugf("[Watermark] Rendered report %d for user %d in %s", report.ID, viewer.ID, time.Since(start))
	return out, nil
}

func (r *Renderer) readSource(ctx context.Context, key string) ([]byte, error) {
	rc, err := r.store.Open(ctx, key)
	if errors.Is(err, storage.ErrNotExist) {
		return nil, ErrSourceMissing
	}
	if err != nil {
		return nil, fmt.Errorf("open report source: %w", err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read report source: %w", err)
	}
	return b, nil
}

func (r *Renderer) stamp(src []byte, out, text string) error {
	png, err := overlayPNG(text)
	if err != nil {
		return fmt.Errorf("build overlay: %w", err)
	}
	wm, err := api.ImageWatermarkForReader(bytes.NewReader(png), stampDescription, true, false, types.POINTS)
	if err != nil {
		return fmt.Errorf("configure watermark: %w", err)
	}

	f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := api.AddWatermarks(bytes.NewReader(src), f, nil, wm, model.NewDefaultConfiguration()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// OutputName is watermarked_<ulid>_<name>.pdf, unique per render.
func OutputName(sourceRef string) string {
	name := strings.TrimSuffix(path.Base(filepath.ToSlash(sourceRef)), path.Ext(sourceRef))
	name = strings.Trim(unsafeName.ReplaceAllString(name, "_"), "._")
	if name == "" {
		name = "report"
	}
	return fmt.Sprintf("watermarked_%s_%s.pdf", ulid.Make().String(), name)
}
