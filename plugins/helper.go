package plugins

import (
	"os"
	"path/filepath"
	"sitegen/core"
	"strings"
	"text/template"
)

// ApplyTemplate renders body as a text template with vars
func ApplyTemplate(name, body string, vars any) ([]byte, error) {
	tmpl, err := template.New(name).Parse(body)
	if err != nil {
		core.Error("failed to parse template", "name", name, "error", err)
		return nil, err
	}

	var output strings.Builder
	if err := tmpl.Execute(&output, vars); err != nil {
		core.Error("failed to execute template", "name", name, "error", err)
		return nil, err
	}

	return []byte(output.String()), nil
}

// absRoot resolves a configured root once so watcher paths can be compared to it
func absRoot(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Clean(root)
	}
	return abs
}

// underRoot reports whether path is root or lies below it
func underRoot(root, path string) bool {
	if root == "" {
		return false
	}
	path = absRoot(path)
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// listFolders returns the visible subdirectories of root in directory order.
// A missing root is core.ErrInputRootMissing.
func listFolders(root string, skip ...string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, core.NewItemError(root, core.ErrInputRootMissing)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, core.NewFileManagerError("readdir", root, err)
	}

	skipped := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipped[name] = true
	}

	var folders []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || core.IsHidden(name) || skipped[name] {
			continue
		}
		folders = append(folders, name)
	}
	return folders, nil
}

// readContentFile returns the first of names that exists in dir
func readContentFile(dir string, names ...string) (string, []byte, error) {
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err == nil {
			return path, data, nil
		}
		if !os.IsNotExist(err) {
			return path, nil, err
		}
	}
	return "", nil, core.ErrMissingContentFile
}
