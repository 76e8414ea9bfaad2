package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed *.json.tmpl
var templates embed.FS

var templateFiles = []string{
	"grafana-handover.json.tmpl",
}

// Render parses the dashboard templates and writes the rendered Grafana
// dashboards for the handover metrics to outDir. Templates read the
// Prometheus datasource UID from PROMETHEUS_DATASOURCE_UID.
func Render(outDir string) ([]string, error) {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, tplName := range templateFiles {
		t, err := template.New(tplName).Funcs(funcMap).ParseFS(templates, tplName)
		if err != nil {
			return written, err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(tplName, ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return written, err
		}
		if err := t.Execute(f, nil); err != nil {
			f.Close()
			os.Remove(outPath)
			return written, err
		}
		if err := f.Close(); err != nil {
			return written, err
		}
		written = append(written, outPath)
	}
	return written, nil
}
