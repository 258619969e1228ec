package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blakesmith/ar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDeb builds a minimal .deb holding control.
func mockDeb(t *testing.T, control string) []byte {
	t.Helper()
	var tarBuf bytes.Buffer
	gz := gzip.NewWriter(&tarBuf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "./control", Mode: 0644, Size: int64(len(control)), Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte(control))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	var buf bytes.Buffer
	w := ar.NewWriter(&buf)
	require.NoError(t, w.WriteGlobalHeader())
	for _, m := range []struct {
		name string
		body []byte
	}{
		{"debian-binary", []byte("2.0\n")},
		{"control.tar.gz", tarBuf.Bytes()},
	} {
		require.NoError(t, w.WriteHeader(&ar.Header{Name: m.name, Size: int64(len(m.body)), Mode: 0644, ModTime: time.Unix(0, 0)}))
		_, err := w.Write(m.body)
		require.NoError(t, err)
	}
	return buf.Bytes()
}

// fakeGitHub serves the releases of acme/tool and their assets.
func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	pkg := mockDeb(t, "Package: tool\nVersion: 1.0.0\nArchitecture: amd64\nMaintainer: Acme <dev@acme.test>\nDescription: a tool\n")
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/repos/acme/tool/releases", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `[
			{"tag_name": "v1.0.0", "draft": false, "published_at": "2024-01-02T10:00:00Z",
			 "assets": [{"name": "tool_1.0.0_amd64.deb", "browser_download_url": "%[1]s/dl/tool_1.0.0_amd64.deb"},
			            {"name": "checksums.txt", "browser_download_url": "%[1]s/dl/checksums.txt"}]},
			{"tag_name": "v1.1.0-rc1", "draft": true, "published_at": null, "assets": []}
		]`, srv.URL)
	})
	mux.HandleFunc("/dl/tool_1.0.0_amd64.deb", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(pkg)))
		if r.Method == http.MethodHead {
			return
		}
		w.Write(pkg)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, apiURL string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`output_dir = "repo"
suite = "stable"
component = "main"
repositories = ["https://github.com/acme/tool"]
api_url = %q
api_rate = 0
extractor = "native"
summarizer = "native"
log_format = "json"

[archive_info]
origin = "acme"
label = "Acme tools"
`, apiURL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func clearSecrets(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("PAT", "")
	t.Setenv("GPG_PRIVATE_KEY", "")
}

func TestSyncCommand(t *testing.T) {
	clearSecrets(t)
	srv := fakeGitHub(t)
	dir := t.TempDir()
	config := writeConfig(t, dir, srv.URL)

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs([]string{"sync", "--config", config, "--ci"})
	require.NoError(t, cmd.Execute(), stderr.String())

	repo := filepath.Join(dir, "repo")
	packages, err := os.ReadFile(filepath.Join(repo, "dists", "stable", "main", "binary-amd64", "Packages"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(packages), "Package: tool\nVersion: 1.0.0\nArchitecture: amd64\n"), string(packages))
	assert.Contains(t, string(packages), "Filename: pool/main/acme/tool/v1.0.0/tool_1.0.0_amd64.deb\n")

	release, err := os.ReadFile(filepath.Join(repo, "dists", "stable", "Release"))
	require.NoError(t, err)
	assert.Contains(t, string(release), "Origin: acme\n")
	assert.Contains(t, string(release), "Date: Tue, 02 Jan 2024 10:00:00 +0000\n")
	assert.Contains(t, string(release), "Architectures: amd64\n")

	assert.FileExists(t, filepath.Join(repo, "package-cache-acme-tool.json"))
	assert.NoFileExists(t, filepath.Join(repo, "pool", "main", "acme", "tool", "v1.0.0", "tool_1.0.0_amd64.deb"))
	assert.Contains(t, stderr.String(), "suite=stable component=main repositories=1")
	assert.Contains(t, stderr.String(), `"message":"sync done"`)
}

func TestSyncCommandExploratory(t *testing.T) {
	clearSecrets(t)
	srv := fakeGitHub(t)
	dir := t.TempDir()
	config := writeConfig(t, dir, srv.URL)

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs([]string{"--config", config, "--ci=false"})
	require.NoError(t, cmd.Execute(), stderr.String())

	repo := filepath.Join(dir, "repo")
	assert.FileExists(t, filepath.Join(repo, "pool", "main", "acme", "tool", "v1.0.0", "tool_1.0.0_amd64.deb"))
	assert.NoFileExists(t, filepath.Join(repo, "package-cache-acme-tool.json"))
	assert.NoDirExists(t, filepath.Join(repo, "dists"))
}

func TestSyncCommandBadConfig(t *testing.T) {
	clearSecrets(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("suite = \"stable\"\n"), 0644))

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs([]string{"sync", "--config", path})
	require.Error(t, cmd.Execute())
	assert.Contains(t, stderr.String(), "could not load configuration")
}

func TestSyncCommandBadSigningKey(t *testing.T) {
	clearSecrets(t)
	t.Setenv("GPG_PRIVATE_KEY", "not a key")
	srv := fakeGitHub(t)
	config := writeConfig(t, t.TempDir(), srv.URL)

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs([]string{"sync", "--config", config, "--ci"})
	require.Error(t, cmd.Execute())
	assert.Contains(t, stderr.String(), "invalid setup")
}

func TestVersionCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "Version: dev\n", stdout.String())
}

func TestGithubToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("PAT", "pat-token")
	assert.Equal(t, "pat-token", githubToken())
	t.Setenv("GITHUB_TOKEN", "gh-token")
	assert.Equal(t, "gh-token", githubToken())
}
