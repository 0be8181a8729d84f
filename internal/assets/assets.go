package assets

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed helm-values/*.yaml manifests/*.yaml
var content embed.FS

// Values returns the embedded Helm values file for a release.
func Values(release string) ([]byte, error) {
	data, err := content.ReadFile("helm-values/" + release + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no values file for release %s: %w", release, err)
	}
	return data, nil
}

// WriteValuesFile materializes a values file into dir so it can be handed
// to the helm CLI, returning its path.
func WriteValuesFile(dir, release string) (string, error) {
	data, err := Values(release)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, release+"-values.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write values file for %s: %w", release, err)
	}
	return path, nil
}

// Manifest returns an embedded Kubernetes manifest verbatim.
func Manifest(name string) ([]byte, error) {
	data, err := content.ReadFile("manifests/" + name)
	if err != nil {
		return nil, fmt.Errorf("no manifest %s: %w", name, err)
	}
	return data, nil
}

// RenderManifest executes an embedded manifest as a template with the given
// data. Used for manifests that reference account-specific values like IAM
// role ARNs.
func RenderManifest(name string, data interface{}) ([]byte, error) {
	raw, err := Manifest(name)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("bad manifest template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render manifest %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
