// Package categories manages the closed set of course category tags.
package categories

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/lukaszraczylo/coursebot/pkg/fuzzy"
)

// Category is one canonical course tag.
type Category struct {
	Tag     string   `yaml:"tag"`
	Title   string   `yaml:"title"`
	Aliases []string `yaml:"aliases"`
}

// fileConfig is the top-level YAML structure of an override file.
type fileConfig struct {
	Categories []Category `yaml:"categories"`
}

// Registry holds the category set, keyed by tag, preserving definition order.
// A selection token resolves to the same canonical tag whether it arrives as
// a 1-based index, the tag itself, or an alias.
type Registry struct {
	byTag map[string]*Category
	// alias and tag lookups are keyed by normalized token
	byToken map[string]*Category
	order   []string
}

// Default returns the built-in category set.
func Default() *Registry {
	return build([]Category{
		{Tag: "math", Title: "Mathematics", Aliases: []string{"mathematics", "matematica", "calculus"}},
		{Tag: "science", Title: "Sciences", Aliases: []string{"sciences", "ciencias", "chemistry", "physics", "biology"}},
		{Tag: "languages", Title: "Languages", Aliases: []string{"language", "linguagens", "idiomas"}},
		{Tag: "writing", Title: "Writing", Aliases: []string{"redacao", "essay"}},
		{Tag: "tech", Title: "Technology", Aliases: []string{"technology", "tecnologia", "programming"}},
	})
}

// Load reads an override file at path. A missing file yields the built-in
// defaults, not an error. A file that parses but defines no categories is
// rejected: the bot cannot run with an empty tag set.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Categories) == 0 {
		return Default(), nil
	}
	return build(cfg.Categories), nil
}

func build(cats []Category) *Registry {
	r := &Registry{
		byTag:   make(map[string]*Category, len(cats)),
		byToken: make(map[string]*Category),
	}
	for i := range cats {
		c := &cats[i]
		if c.Tag == "" {
			continue
		}
		if _, dup := r.byTag[c.Tag]; dup {
			continue
		}
		r.byTag[c.Tag] = c
		r.order = append(r.order, c.Tag)

		r.byToken[fuzzy.Normalize(c.Tag)] = c
		r.byToken[fuzzy.Normalize(c.Title)] = c
		for _, alias := range c.Aliases {
			if _, taken := r.byToken[fuzzy.Normalize(alias)]; !taken {
				r.byToken[fuzzy.Normalize(alias)] = c
			}
		}
	}
	return r
}

// Get returns a category by canonical tag.
func (r *Registry) Get(tag string) (*Category, bool) {
	c, ok := r.byTag[tag]
	return c, ok
}

// ByIndex returns the category at a 1-based position in definition order.
func (r *Registry) ByIndex(i int) (*Category, bool) {
	if i < 1 || i > len(r.order) {
		return nil, false
	}
	return r.byTag[r.order[i-1]], true
}

// Parse resolves a selection token to a category. The token may be a 1-based
// index, a canonical tag, a title, or an alias; matching is case- and
// accent-insensitive. An out-of-range index or unknown token returns false.
func (r *Registry) Parse(token string) (*Category, bool) {
	t := fuzzy.Normalize(token)
	if t == "" {
		return nil, false
	}
	if i, err := strconv.Atoi(t); err == nil {
		return r.ByIndex(i)
	}
	c, ok := r.byToken[t]
	return c, ok
}

// Tags returns the canonical tags in definition order.
func (r *Registry) Tags() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of categories.
func (r *Registry) Len() int {
	return len(r.order)
}
