// Package image downloads and downscales header images for posts. Every
// failure is absorbed: the caller gets an empty path, never an error.
package image

import (
	"crypto/md5"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/image/draw"
)

const defaultMaxWidth = 800

// Handler downloads, resizes, and stores post images.
type Handler struct {
	dir      string
	maxWidth int
	client   *http.Client
	now      func() time.Time
}

// NewHandler creates a handler storing images under dir.
func NewHandler(dir string) *Handler {
	return &Handler{
		dir:      dir,
		maxWidth: defaultMaxWidth,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// Download fetches the image at rawURL, downscales it to the max width, and
// stores it under the handler's directory. Returns the local path, or ""
// if anything goes wrong.
func (h *Handler) Download(rawURL, titleHint string) string {
	if rawURL == "" {
		return ""
	}
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		log.Printf("Could not create image directory %s: %v", h.dir, err)
		return ""
	}

	req, err := http.NewRequest("GET", rawURL, nil)
	if err != nil {
		log.Printf("Bad image URL %s: %v", rawURL, err)
		return ""
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := h.client.Do(req)
	if err != nil {
		log.Printf("Image download failed for %s: %v", rawURL, err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Image download returned %d for %s", resp.StatusCode, rawURL)
		return ""
	}

	img, format, err := image.Decode(resp.Body)
	if err != nil {
		log.Printf("Could not decode image from %s: %v", rawURL, err)
		return ""
	}

	img = h.downscale(img)

	path := filepath.Join(h.dir, h.filename(rawURL, titleHint, format))
	out, err := os.Create(path)
	if err != nil {
		log.Printf("Could not create image file %s: %v", path, err)
		return ""
	}
	defer out.Close()

	switch format {
	case "png":
		err = png.Encode(out, img)
	case "gif":
		err = gif.Encode(out, img, nil)
	default:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		log.Printf("Could not encode image %s: %v", path, err)
		os.Remove(path)
		return ""
	}

	log.Printf("Image saved to %s", path)
	return path
}

// downscale scales img down to maxWidth, keeping aspect ratio. Images
// already narrow enough pass through untouched.
func (h *Handler) downscale(img image.Image) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	if width <= h.maxWidth {
		return img
	}

	height := bounds.Dy() * h.maxWidth / width
	dst := image.NewRGBA(image.Rect(0, 0, h.maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// filename builds a unique image filename from the article title (or a URL
// hash when no title is available) plus a timestamp.
func (h *Handler) filename(rawURL, titleHint, format string) string {
	ext := extensionFor(rawURL, format)

	base := slugifyTitle(titleHint)
	if base == "" {
		base = fmt.Sprintf("%x", md5.Sum([]byte(rawURL)))[:16]
	}

	return fmt.Sprintf("%s_%s%s", base, h.now().Format("20060102150405"), ext)
}

func extensionFor(rawURL, format string) string {
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(filepath.Ext(u.Path))
		switch ext {
		case ".jpg", ".jpeg", ".png", ".gif", ".webp":
			return ext
		}
	}
	switch format {
	case "png":
		return ".png"
	case "gif":
		return ".gif"
	}
	return ".jpg"
}

func slugifyTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	s := b.String()
	if len(s) > 50 {
		cut := 50
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return strings.Trim(s, "_")
}
