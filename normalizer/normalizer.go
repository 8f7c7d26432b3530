package normalizer

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/mcpclient"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/effective-security/xlog"
	"github.com/spf13/cast"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "normalizer")

// Option configures the Normalizer.
type Option func(*Normalizer)

// WithDir sets the folder where images are saved.
func WithDir(dir string) Option {
	return func(n *Normalizer) {
		n.dir = dir
	}
}

// WithClock sets the time source used for image file names.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// Normalizer renders tool results as text.
type Normalizer struct {
	dir string
	now func() time.Time
}

// New returns a Normalizer saving images in the working directory,
// unless WithDir is provided.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		now: time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.dir == "" {
		n.dir, _ = os.Getwd()
	}
	return n
}

// Normalize returns the text representation of the result of the tool call.
func (n *Normalizer) Normalize(tool string, result mcpclient.Result) string {
	switch r := result.(type) {
	case mcpclient.ErrorResult:
		return "tool execution error: " + r.Message
	case mcpclient.ImageResult:
		return n.saveImages(tool, r)
	case mcpclient.TextResult:
		return strings.Join(r.Texts, "\n")
	case mcpclient.StructuredResult:
		if m, ok := r.Value.(map[string]any); ok {
			if v, ok := m["error"]; ok {
				return fmt.Sprintf("error: %v", v)
			}
		}
		return render(r.Value)
	case mcpclient.OpaqueResult:
		return render(r.Value)
	case nil:
		return render(nil)
	default:
		// unreachable as Result is sealed
		return fmt.Sprintf("%+v", r)
	}
}

func (n *Normalizer) saveImages(tool string, r mcpclient.ImageResult) string {
	ts := n.now().Unix()
	lines := make([]string, 0, len(r.Images)+len(r.Texts))
	for i, img := range r.Images {
		name := fmt.Sprintf("%s_%d", tool, ts)
		if i > 0 {
			name = fmt.Sprintf("%s_%d", name, i)
		}
		name = fileName(name + "." + Extension(img.MIMEType))

		path, size, err := n.writeImage(name, img.Data)
		if err != nil {
			logger.KV(xlog.ERROR,
				"reason", "save_image",
				"tool", tool,
				"file", name,
				"err", err.Error())
			lines = append(lines, fmt.Sprintf("Failed to save image (mime: %s): %s", img.MIMEType, err.Error()))
			continue
		}
		logger.KV(xlog.DEBUG,
			"status", "image_saved",
			"tool", tool,
			"path", path,
			"size", size)
		lines = append(lines, fmt.Sprintf("Image saved to %s (mime: %s, size: %d bytes)", path, img.MIMEType, size))
	}
	lines = append(lines, r.Texts...)
	return strings.Join(lines, "\n")
}

func (n *Normalizer) writeImage(name, data string) (string, int, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", 0, errors.Wrap(err, "unable to decode image")
	}
	path := filepath.Join(n.dir, name)
	if err = os.WriteFile(path, raw, 0o644); err != nil {
		return "", 0, errors.Wrapf(err, "unable to write %s", path)
	}
	return path, len(raw), nil
}

// fileName keeps the image inside the target folder.
func fileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		}
		return r
	}, name)
}

// Extension returns the file extension for the image MIME type.
func Extension(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = mimeType
	}
	_, sub, _ := strings.Cut(mt, "/")
	switch sub {
	case "":
		return "bin"
	case "jpeg":
		return "jpg"
	case "svg+xml":
		return "svg"
	}
	return sub
}

func render(v any) string {
	if js := llmutils.ToJSONIndent(v); js != "" {
		return js
	}
	return fmt.Sprintf("%+v", v)
}

// Progress returns the progress reported by a structured result carrying
// `progress` and `total` values.
func Progress(result mcpclient.Result) (progress, total float64, ok bool) {
	sr, isStructured := result.(mcpclient.StructuredResult)
	if !isStructured {
		return 0, 0, false
	}
	m, isMap := sr.Value.(map[string]any)
	if !isMap {
		return 0, 0, false
	}
	p, hasProgress := m["progress"]
	t, hasTotal := m["total"]
	if !hasProgress || !hasTotal {
		return 0, 0, false
	}
	var err error
	if progress, err = cast.ToFloat64E(p); err != nil {
		return 0, 0, false
	}
	if total, err = cast.ToFloat64E(t); err != nil || total <= 0 {
		return 0, 0, false
	}
	return progress, total, true
}

// LogProgress logs the progress of the tool, if reported by the result.
func LogProgress(tool string, result mcpclient.Result) {
	progress, total, ok := Progress(result)
	if !ok {
		return
	}
	logger.KV(xlog.INFO,
		"tool", tool,
		"progress", fmt.Sprintf("Progress: %v/%v (%.1f%%)", progress, total, progress/total*100))
}
