// Package apt maintains the dists/ tree of an APT repository: it scans
// packages into metadata blocks, appends them to the per-architecture
// Packages indices and generates the suite Release file.
//
// Scanning and summarizing come in two flavours. The command flavour runs
// dpkg-scanpackages and apt-ftparchive, the native flavour does the same work
// in Go on top of package deb.
package apt

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/etnz/apt-release-mirror/errs"
	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
)

var archPattern = regexp.MustCompile(`Architecture: (\S+)\n`)

// ParseArchitecture returns the value of the first Architecture field of a
// metadata block. A block without one is a KindExtraction error.
func ParseArchitecture(block string) (string, error) {
	m := archPattern.FindStringSubmatch(block)
	if m == nil {
		return "", errs.Errorf(errs.KindExtraction, "parse architecture", "can not find arch in package file %q", block)
	}
	arch := m[1]
	if strings.ContainsAny(arch, `/\`) || arch == "." || arch == ".." {
		return "", errs.Errorf(errs.KindExtraction, "parse architecture", "invalid architecture %q", arch)
	}
	return arch, nil
}

// splitCommand parses a command line the way a POSIX shell would, without
// running one.
func splitCommand(cmdline string) ([]string, error) {
	args, err := shellwords.Parse(cmdline)
	if err != nil {
		return nil, errors.Wrapf(err, "parse command %q", cmdline)
	}
	if len(args) == 0 {
		return nil, errors.Errorf("empty command %q", cmdline)
	}
	return args, nil
}

// run executes args in dir and returns its standard output. extraEnv is
// appended to the current environment.
func run(ctx context.Context, dir string, extraEnv []string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, errors.Wrapf(err, "%s: %s", strings.Join(args, " "), msg)
		}
		return nil, errors.Wrap(err, strings.Join(args, " "))
	}
	return stdout.Bytes(), nil
}
