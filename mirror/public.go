package mirror

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/etnz/apt-release-mirror/errs"
)

// CopyPublic copies every regular file below src into dst, keeping relative
// paths and overwriting existing files. A missing src is not an error.
func CopyPublic(src, dst string, listener Listener) error {
	if src == "" {
		return nil
	}
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if err := copyFile(path, target); err != nil {
			return err
		}
		if listener != nil {
			listener(EventPublicCopy{Source: path, Destination: target})
		}
		return nil
	})
	if err != nil {
		return errs.New(errs.KindIO, "copy public files", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
