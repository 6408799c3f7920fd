// Package i18n renders user-facing text from embedded gettext catalogs.
package i18n

import (
	"embed"
	"fmt"

	"github.com/leonelquinteros/gotext"

	"wirdbot/internal/model"
)

//go:embed locales/*.po
var localesFS embed.FS

// Catalog maps (language, key) to a printf template.
// Lookups are total: an unknown language falls back to English and an
// unknown key renders as the key itself.
type Catalog struct {
	po map[model.Language]*gotext.Po
}

// Load parses the embedded catalogs for every supported language.
func Load() (*Catalog, error) {
	c := &Catalog{po: map[model.Language]*gotext.Po{}}
	for _, lang := range model.Languages {
		b, err := localesFS.ReadFile("locales/" + string(lang) + ".po")
		if err != nil {
			return nil, fmt.Errorf("load %s catalog: %w", lang, err)
		}
		po := gotext.NewPo()
		po.Parse(b)
		c.po[lang] = po
	}
	return c, nil
}

// MustLoad is Load for program start-up.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) lookup(lang model.Language, key string) (string, bool) {
	if c == nil {
		return "", false
	}
	if po := c.po[lang]; po != nil {
		if s := po.Get(key); s != key && s != "" {
			return s, true
		}
	}
	if lang != model.DefaultLanguage {
		if po := c.po[model.DefaultLanguage]; po != nil {
			if s := po.Get(key); s != key && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// T renders key in lang with printf-style args.
func (c *Catalog) T(lang model.Language, key string, args ...any) string {
	tpl, ok := c.lookup(lang, key)
	if !ok {
		return key
	}
	if len(args) == 0 {
		return tpl
	}
	return fmt.Sprintf(tpl, args...)
}

// Has reports whether key exists in lang without falling back.
func (c *Catalog) Has(lang model.Language, key string) bool {
	if c == nil || c.po[lang] == nil {
		return false
	}
	s := c.po[lang].Get(key)
	return s != key && s != ""
}
