package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blakesmith/ar"
)

func writeDeb(t *testing.T, path, control string) {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	if err := tw.WriteHeader(&tar.Header{Name: "./control", Mode: 0644, Size: int64(len(control)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	tw.Write([]byte(control))
	tw.Close()

	var buf bytes.Buffer
	w := ar.NewWriter(&buf)
	w.WriteGlobalHeader()
	for _, m := range []struct {
		name string
		body []byte
	}{
		{"debian-binary", []byte("2.0\n")},
		{"control.tar", tarBuf.Bytes()},
	} {
		if err := w.WriteHeader(&ar.Header{Name: m.name, Size: int64(len(m.body)), Mode: 0644, ModTime: time.Unix(0, 0)}); err != nil {
			t.Fatal(err)
		}
		w.Write(m.body)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	writeDeb(t, filepath.Join(dir, "b", "tool_arm64.deb"), "Package: tool\nVersion: 1.0\nArchitecture: arm64\n")
	writeDeb(t, filepath.Join(dir, "a", "tool_amd64.deb"), "Package: tool\nVersion: 1.0\nArchitecture: amd64\n")
	os.WriteFile(filepath.Join(dir, "README"), []byte("not a package"), 0644)

	var out bytes.Buffer
	cmd := newCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--prefix", "mirror", dir})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	stanzas := strings.Split(strings.TrimSuffix(out.String(), "\n\n"), "\n\n")
	if len(stanzas) != 2 {
		t.Fatalf("expected 2 stanzas, got %d:\n%s", len(stanzas), out.String())
	}
	if !strings.Contains(stanzas[0], "Architecture: amd64") || !strings.Contains(stanzas[1], "Architecture: arm64") {
		t.Errorf("stanzas not sorted by path:\n%s", out.String())
	}
	want := "Filename: " + filepath.ToSlash(filepath.Join("mirror", dir, "a", "tool_amd64.deb"))
	if !strings.Contains(stanzas[0], want) {
		t.Errorf("expected %q in\n%s", want, stanzas[0])
	}
}

func TestScanArchFilterAndOutput(t *testing.T) {
	dir := t.TempDir()
	writeDeb(t, filepath.Join(dir, "tool_amd64.deb"), "Package: tool\nVersion: 1.0\nArchitecture: amd64\n")
	writeDeb(t, filepath.Join(dir, "tool_arm64.deb"), "Package: tool\nVersion: 1.0\nArchitecture: arm64\n")
	output := filepath.Join(dir, "Packages")

	cmd := newCmd()
	cmd.SetArgs([]string{"--arch", "arm64", "--gzip", "-o", output, dir})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	plain, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(plain), "amd64") || !strings.Contains(string(plain), "Architecture: arm64") {
		t.Errorf("unexpected index:\n%s", plain)
	}

	f, err := os.Open(output + ".gz")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	unzipped, _ := io.ReadAll(gz)
	if !bytes.Equal(unzipped, plain) {
		t.Errorf("Packages.gz does not match Packages")
	}
}

func TestScanMissingPath(t *testing.T) {
	cmd := newCmd()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "nope")})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error")
	}
}
