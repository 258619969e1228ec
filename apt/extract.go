package apt

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/etnz/apt-release-mirror/deb"
	"github.com/etnz/apt-release-mirror/errs"
)

// Extractor turns the packages staged in a directory into metadata blocks.
//
// root is the repository root and dir the staging directory relative to it.
// The Filename fields of the result are relative to root.
type Extractor interface {
	Extract(ctx context.Context, root, dir string) (string, error)
}

// CommandExtractor runs an external scanner such as
// "dpkg-scanpackages --multiversion" with dir as last argument and root as
// working directory.
type CommandExtractor struct {
	args []string
}

func NewCommandExtractor(cmdline string) (*CommandExtractor, error) {
	args, err := splitCommand(cmdline)
	if err != nil {
		return nil, errs.New(errs.KindConfig, "extractor_command", err)
	}
	return &CommandExtractor{args: args}, nil
}

func (e *CommandExtractor) Extract(ctx context.Context, root, dir string) (string, error) {
	args := append(append([]string{}, e.args...), filepath.ToSlash(dir))
	out, err := run(ctx, root, nil, args)
	if err != nil {
		return "", errs.New(errs.KindExtraction, "scan "+dir, err)
	}
	return string(out), nil
}

// NativeExtractor reads the .deb files of dir with package deb.
type NativeExtractor struct{}

func (NativeExtractor) Extract(ctx context.Context, root, dir string) (string, error) {
	entries, err := os.ReadDir(filepath.Join(root, dir))
	if err != nil {
		return "", errs.New(errs.KindIO, "scan "+dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".deb") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return "", errs.New(errs.KindExtraction, "scan "+dir, err)
		}
		stanza, err := deb.ScanFile(filepath.Join(root, dir, name), path.Join(filepath.ToSlash(dir), name))
		if err != nil {
			return "", errs.New(errs.KindExtraction, "scan "+name, err)
		}
		b.WriteString(stanza)
	}
	return b.String(), nil
}
