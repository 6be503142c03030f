package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aymerick/raymond"

	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/logger"
)

const (
	templateExt        = ".html"
	complimentTemplate = "compliment"
)

//go:embed templates/*.html
var defaultTemplates embed.FS

// compliment is the context rendered on the index page.
var compliment = map[string]string{
	"adjective": "awesome",
	"verb":      "is",
}

// Site serves the compliment page and static assets.
type Site struct {
	templates map[string]*raymond.Template
	mux       *http.ServeMux
}

// New loads *.html Handlebars templates from templatesDir, named without the extension.
// When templatesDir is missing or lacks a "compliment" template the embedded
// default is used. publicDir is served under /public/ with directory listing.
func New(templatesDir, publicDir string) (*Site, error) {
	tmpl, err := loadTemplates(templatesDir)
	if err != nil {
		return nil, err
	}

	s := &Site{templates: tmpl, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /{$}", s.handleCompliment)
	s.mux.Handle("GET /public/", http.StripPrefix("/public/", http.FileServer(http.Dir(publicDir))))
	return s, nil
}

func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Site) handleCompliment(w http.ResponseWriter, r *http.Request) {
	page, err := s.templates[complimentTemplate].Exec(compliment)
	if err != nil {
		logger.Error("Template render failed", "template", complimentTemplate, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}

func loadTemplates(dir string) (map[string]*raymond.Template, error) {
	templates := make(map[string]*raymond.Template)

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("Templates directory not accessible, using embedded templates", "dir", dir, "error", err)
	} else {
		logger.Info("Templates directory is accessible", "dir", dir, "entries", len(entries))
		for _, entry := range entries {
			logger.Debug("Template directory entry", "path", filepath.Join(dir, entry.Name()))
			if entry.IsDir() || filepath.Ext(entry.Name()) != templateExt {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				return nil, fmt.Errorf("failed to read template %s: %w", entry.Name(), err)
			}
			tpl, err := raymond.Parse(string(data))
			if err != nil {
				return nil, fmt.Errorf("failed to parse template %s: %w", entry.Name(), err)
			}
			templates[strings.TrimSuffix(entry.Name(), templateExt)] = tpl
		}
	}

	if _, ok := templates[complimentTemplate]; !ok {
		data, err := fs.ReadFile(defaultTemplates, path.Join("templates", complimentTemplate+templateExt))
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded template: %w", err)
		}
		tpl, err := raymond.Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse embedded template: %w", err)
		}
		templates[complimentTemplate] = tpl
		logger.Info("Template registered from embedded defaults", "template", complimentTemplate)
	} else {
		logger.Info("Template registered", "template", complimentTemplate, "dir", dir)
	}

	return templates, nil
}
