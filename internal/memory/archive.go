package memory

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// archiveFile gzips src into dstDir/<base>.gz and removes the
// original. The content is preserved in the archive, so this is a move,
// not a delete. Returns the archive path and compressed size.
func archiveFile(src, dstDir string) (string, int64, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create archive directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	dst := filepath.Join(dstDir, filepath.Base(src)+".gz")
	out, err := os.Create(dst)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", dst, err)
	}

	zw, err := gzip.NewWriterLevel(out, gzip.BestCompression)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return "", 0, fmt.Errorf("gzip writer: %w", err)
	}
	zw.Name = filepath.Base(src)

	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		os.Remove(dst)
		return "", 0, fmt.Errorf("compress %s: %w", src, err)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return "", 0, fmt.Errorf("finish gzip stream: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", 0, fmt.Errorf("close %s: %w", dst, err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return "", 0, fmt.Errorf("stat archive: %w", err)
	}

	// Remove the original only once the archive is durably in place.
	if err := os.Remove(src); err != nil {
		return "", 0, fmt.Errorf("remove archived original: %w", err)
	}
	return dst, info.Size(), nil
}

// readArchived decompresses one archived file for explicit raw access.
func readArchived(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", path, err)
	}
	return data, nil
}
