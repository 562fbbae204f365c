package generator

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/tyler-sommer/stick"
)

//go:embed prompts/*.twig
var promptFS embed.FS

const (
	promptSocialPost         = "social_post"
	promptSocialPostFallback = "social_post_fallback"
	promptDocument           = "document"
	promptDocumentText       = "document_text"
)

// prompts renders the embedded twig templates.
type prompts struct {
	env       *stick.Env
	templates map[string]string
}

func loadPrompts() (*prompts, error) {
	p := &prompts{
		env:       stick.New(nil),
		templates: make(map[string]string),
	}
	err := fs.WalkDir(promptFS, "prompts", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(name, ".twig") {
			return nil
		}
		content, readErr := fs.ReadFile(promptFS, name)
		if readErr != nil {
			return fmt.Errorf("read %s: %w", name, readErr)
		}
		p.templates[strings.TrimSuffix(path.Base(name), ".twig")] = string(content)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *prompts) render(tag string, vars map[string]stick.Value) (string, error) {
	tpl, ok := p.templates[tag]
	if !ok {
		return "", fmt.Errorf("template %q not found", tag)
	}
	var out strings.Builder
	if err := p.env.Execute(tpl, &out, vars); err != nil {
		return "", fmt.Errorf("execute %q: %w", tag, err)
	}
	return strings.TrimSpace(out.String()), nil
}
