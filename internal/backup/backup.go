// Package backup packs a database directory into a zstd-compressed zip
// archive and stores the archive bytes in the pixels of a PNG image.
//
// Image layout (non-premultiplied RGBA, row-major, square):
//
//	pixel 0:  255 255 255 255 marker
//	pixel 1:  archive length, big-endian uint32
//	pixel 2+: archive bytes, 4 per pixel, zero padded
package backup

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

const headerPixels = 2

// ErrNotBackup is returned when an image does not carry a packed archive.
var ErrNotBackup = errors.New("image does not hold a database backup")

// Options controls archive compression.
type Options struct {
	Level zstd.EncoderLevel
	// Skip reports whether a path relative to the root is left out.
	Skip func(rel string) bool
}

// Archive zips every file under root into w, compressing with zstd. It
// returns the number of files written.
func Archive(root string, w io.Writer, opts Options) (int, error) {
	info, err := os.Stat(root)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", root)
	}
	level := opts.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor(zstd.WithEncoderLevel(level)))

	files := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if opts.Skip != nil && opts.Skip(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			_, err := zw.Create(rel + "/")
			return err
		}

		fw, err := zw.CreateHeader(&zip.FileHeader{Name: rel, Method: zstd.ZipMethodWinZip})
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(fw, f); err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
		files++
		return nil
	})
	if err != nil {
		zw.Close()
		return files, err
	}
	return files, zw.Close()
}

// Extract unpacks an archive produced by Archive into dst. Entries that
// would land outside dst are rejected.
func Extract(archive []byte, dst string) (int, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	files := 0
	for _, zf := range zr.File {
		target, err := safeJoin(dst, zf.Name)
		if err != nil {
			return files, err
		}
		if strings.HasSuffix(zf.Name, "/") {
			if err := os.MkdirAll(target, 0755); err != nil {
				return files, err
			}
			continue
		}
		if err := extractFile(zf, target); err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}

func extractFile(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", zf.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", zf.Name, err)
	}
	return out.Close()
}

func safeJoin(dst, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("archive entry %q is absolute", name)
	}
	target := filepath.Join(dst, filepath.FromSlash(name))
	rel, err := filepath.Rel(dst, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return target, nil
}

// ToImage stores payload in a square image. The pixels are non-premultiplied
// so every byte survives PNG encoding unchanged.
func ToImage(payload []byte) (*image.NRGBA, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("payload of %d bytes is too large", len(payload))
	}
	side := int(math.Ceil(math.Sqrt(float64(len(payload)+headerPixels*4) / 4)))
	img := image.NewNRGBA(image.Rect(0, 0, side, side))

	pix := img.Pix
	copy(pix[0:4], []byte{255, 255, 255, 255})
	binary.BigEndian.PutUint32(pix[4:8], uint32(len(payload)))
	copy(pix[headerPixels*4:], payload)
	return img, nil
}

// FromImage recovers the payload stored by ToImage.
func FromImage(src image.Image) ([]byte, error) {
	img, ok := src.(*image.NRGBA)
	if !ok {
		// Fully opaque images come back from the PNG decoder as RGBA.
		b := src.Bounds()
		img = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)
	}
	pix := img.Pix
	if len(pix) < headerPixels*4 || !bytes.Equal(pix[0:4], []byte{255, 255, 255, 255}) {
		return nil, ErrNotBackup
	}
	n := int(binary.BigEndian.Uint32(pix[4:8]))
	data := pix[headerPixels*4:]
	if n > len(data) {
		return nil, fmt.Errorf("%w: length %d exceeds image capacity %d", ErrNotBackup, n, len(data))
	}
	out := make([]byte, n)
	copy(out, data[:n])
	return out, nil
}

// Pack archives root and writes the archive as a PNG image to w.
func Pack(root string, w io.Writer, opts Options) (int, error) {
	var buf bytes.Buffer
	files, err := Archive(root, &buf, opts)
	if err != nil {
		return files, err
	}
	img, err := ToImage(buf.Bytes())
	if err != nil {
		return files, err
	}
	if err := png.Encode(w, img); err != nil {
		return files, fmt.Errorf("encode png: %w", err)
	}
	return files, nil
}

// Unpack reads a PNG produced by Pack and extracts its archive into dst.
func Unpack(r io.Reader, dst string) (int, error) {
	img, err := png.Decode(r)
	if err != nil {
		return 0, fmt.Errorf("decode png: %w", err)
	}
	payload, err := FromImage(img)
	if err != nil {
		return 0, err
	}
	return Extract(payload, dst)
}
