// Command deb-scan prints the Packages index of Debian packages, like
// dpkg-scanpackages does, without needing dpkg.
//
//	deb-scan [--arch amd64] [--prefix pool] [--output Packages] <dir|file.deb>...
package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/etnz/apt-release-mirror/deb"
	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type scanFlags struct {
	arches []string
	prefix string
	output string
	gzip   bool
}

func main() {
	if err := newCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	flags := &scanFlags{}
	cmd := &cobra.Command{
		Use:           "deb-scan <dir|file.deb>...",
		Short:         "Print the Packages stanzas of .deb files",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return scan(cmd.OutOrStdout(), flags, args)
		},
	}
	cmd.Flags().StringSliceVar(&flags.arches, "arch", nil, "only list packages of these architectures")
	cmd.Flags().StringVar(&flags.prefix, "prefix", "", "prefix prepended to the Filename fields")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write the index to this file instead of stdout")
	cmd.Flags().BoolVar(&flags.gzip, "gzip", false, "also write <output>.gz")
	return cmd
}

func scan(stdout io.Writer, flags *scanFlags, args []string) error {
	files, err := collect(args)
	if err != nil {
		return err
	}

	keep := make(map[string]bool)
	for _, a := range flags.arches {
		keep[a] = true
	}

	var b strings.Builder
	for _, file := range files {
		stanza, err := deb.ScanFile(file, path.Join(flags.prefix, filepath.ToSlash(file)))
		if err != nil {
			return err
		}
		if len(keep) > 0 {
			arch, _ := deb.Field(stanza, deb.FieldArchitecture)
			if !keep[arch] {
				continue
			}
		}
		b.WriteString(stanza)
	}

	if flags.output == "" {
		_, err := io.WriteString(stdout, b.String())
		return err
	}
	if err := os.WriteFile(flags.output, []byte(b.String()), 0644); err != nil {
		return err
	}
	if flags.gzip {
		return writeGzip(flags.output+".gz", b.String())
	}
	return nil
}

// collect expands directories into the .deb files they contain, sorted.
func collect(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() && strings.HasSuffix(d.Name(), ".deb") {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "walk %s", arg)
		}
	}
	sort.Strings(files)
	return files, nil
}

func writeGzip(dst, content string) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	w := pgzip.NewWriter(f)
	if _, err := io.WriteString(w, content); err != nil {
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
