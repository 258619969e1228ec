package apt

import (
	"strings"
	"text/template"

	"github.com/etnz/apt-release-mirror/deb"
)

const ftparchiveConf = `APT::FTPArchive::Release {
{{- with .Origin}}
  Origin "{{.}}";
{{- end}}
{{- with .Label}}
  Label "{{.}}";
{{- end}}
  Suite "{{.Suite}}";
{{- with .Codename}}
  Codename "{{.}}";
{{- end}}
  Architectures "{{join .Architectures " "}}";
  Components "{{join .Components " "}}";
{{- with .Description}}
  Description "{{.}}";
{{- end}}
};
`

var ftparchiveTemplate = template.Must(template.New("ftparchive").
	Funcs(template.FuncMap{"join": strings.Join}).
	Option("missingkey=error").
	Parse(ftparchiveConf))

// renderFtparchiveConf returns an apt-ftparchive configuration describing the
// suite of info.
func renderFtparchiveConf(info deb.ReleaseInfo) (string, error) {
	var buf strings.Builder
	if err := ftparchiveTemplate.Execute(&buf, info); err != nil {
		return "", err
	}
	return buf.String(), nil
}
