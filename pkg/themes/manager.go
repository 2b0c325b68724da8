package themes

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/getgauge/common"
)

//go:embed default/assets
var defaultTheme embed.FS

// Manager resolves report themes and copies their assets
type Manager struct {
	theme string
}

// NewManager creates a theme manager. An empty theme selects the built-in one.
func NewManager(theme string) *Manager {
	return &Manager{theme: theme}
}

// CopyAssets copies theme assets into outputDir/assets
func (m *Manager) CopyAssets(outputDir string) error {
	dst := filepath.Join(outputDir, "assets")
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}

	if m.theme == "" {
		return writeDefault(dst)
	}

	assetsPath := filepath.Join(m.getThemePath(m.theme), "assets")
	if _, err := os.Stat(assetsPath); os.IsNotExist(err) {
		return fmt.Errorf("theme %s has no assets directory", m.theme)
	}

	_, err := common.MirrorDir(assetsPath, dst)
	return err
}

func writeDefault(dst string) error {
	root := "default/assets"
	return fs.WalkDir(defaultTheme, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := defaultTheme.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
}

// getThemePath returns the full path to a theme
func (m *Manager) getThemePath(themeName string) string {
	if filepath.IsAbs(themeName) {
		return themeName
	}

	projectThemes := filepath.Join("themes", themeName)
	if _, err := os.Stat(projectThemes); err == nil {
		return projectThemes
	}

	return themeName
}
