package deb

import (
	"archive/tar"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/h2non/filetype"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// countingWriter wraps an io.Writer and counts the bytes written.
type countingWriter struct {
	w io.Writer
	n int64
}

// Write writes p to the underlying io.Writer and increments the byte count.
func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// Checksums holds the size and digests of a file, as listed in Packages
// stanzas and Release files.
type Checksums struct {
	Size   int64
	MD5    string
	SHA1   string
	SHA256 string
}

// Sum reads r to the end and returns its size and digests.
func Sum(r io.Reader) (Checksums, error) {
	md5h, sha1h, sha256h := md5.New(), sha1.New(), sha256.New()
	cw := &countingWriter{w: io.MultiWriter(md5h, sha1h, sha256h)}
	if _, err := io.Copy(cw, r); err != nil {
		return Checksums{}, errors.Wrap(err, "checksum")
	}
	return Checksums{
		Size:   cw.n,
		MD5:    hex.EncodeToString(md5h.Sum(nil)),
		SHA1:   hex.EncodeToString(sha1h.Sum(nil)),
		SHA256: hex.EncodeToString(sha256h.Sum(nil)),
	}, nil
}

// IsArchive reports whether head, the first bytes of a file, starts like a
// Debian binary package.
func IsArchive(head []byte) bool {
	return filetype.Is(head, "deb")
}

// ReadControl iterates through the ar members of a .deb to locate the
// control.tar member, decompresses it and returns the content of its
// 'control' file.
func ReadControl(r io.Reader) (string, error) {
	arR := ar.NewReader(r)
	for {
		header, err := arR.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, "read ar member")
		}

		name := strings.TrimSuffix(strings.TrimSpace(header.Name), "/")
		if !strings.HasPrefix(name, string(PkgControlTar)) {
			continue
		}
		return readControlTar(name, arR)
	}
	return "", errors.New("control archive not found")
}

func readControlTar(name string, r io.Reader) (string, error) {
	var src io.Reader
	switch suffix := strings.TrimPrefix(name, string(PkgControlTar)); suffix {
	case "":
		src = r
	case ".gz":
		gzr, err := pgzip.NewReader(r)
		if err != nil {
			return "", errors.Wrap(err, name)
		}
		defer gzr.Close()
		src = gzr
	case ".xz":
		xzr, err := xz.NewReader(r)
		if err != nil {
			return "", errors.Wrap(err, name)
		}
		src = xzr
	case ".zst":
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return "", errors.Wrap(err, name)
		}
		defer zr.Close()
		src = zr
	default:
		return "", errors.Errorf("unsupported compression %q for %s", suffix, name)
	}

	tr := tar.NewReader(src)
	for {
		th, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, name)
		}
		if filepath.Base(th.Name) != string(FileControl) || th.Typeflag != tar.TypeReg {
			continue
		}
		var b strings.Builder
		if _, err := io.Copy(&b, tr); err != nil {
			return "", errors.Wrap(err, name)
		}
		return b.String(), nil
	}
	return "", errors.Errorf("%s has no control file", name)
}

// Field returns the single-line value of field in a control file or stanza.
func Field(control string, field ControlField) (string, bool) {
	prefix := string(field) + ":"
	for _, line := range strings.Split(control, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
		}
	}
	return "", false
}

// Stanza renders a Packages entry: the control fields followed by the
// Filename, Size, MD5sum, SHA1 and SHA256 fields and a blank line.
func Stanza(control, filename string, sums Checksums) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(control, "\n"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s: %s\n", FieldFilename, filename)
	fmt.Fprintf(&b, "%s: %d\n", FieldSize, sums.Size)
	fmt.Fprintf(&b, "%s: %s\n", FieldMD5sum, sums.MD5)
	fmt.Fprintf(&b, "%s: %s\n", FieldSHA1, sums.SHA1)
	fmt.Fprintf(&b, "%s: %s\n", FieldSHA256, sums.SHA256)
	b.WriteString("\n")
	return b.String()
}

// ScanFile reads the package at path and returns its Packages stanza, with
// filename as the Filename field.
func ScanFile(path, filename string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sums, err := Sum(f)
	if err != nil {
		return "", errors.Wrap(err, path)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	control, err := ReadControl(f)
	if err != nil {
		return "", errors.Wrap(err, path)
	}
	return Stanza(control, filename, sums), nil
}
