package bionic

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lucasb-eyer/go-colorful"
)

// Config holds every knob of a run. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	// Mode selects Monochrome or Polychrome emphasis.
	Mode Mode

	// Palette is the Polychrome colour cycle, as CSS hex colours.
	Palette []string

	// Opacity is the alpha of the trailing half of each word, in [0, 1].
	Opacity float64

	// Elements lists the tag names whose text is rewritten.
	Elements []string

	// Extensions lists the markup file extensions to rewrite.
	Extensions []string

	// Workers bounds the number of documents rewritten concurrently.
	// Zero means runtime.NumCPU().
	Workers int

	// ContinueOnError logs and skips documents that fail to rewrite
	// instead of aborting the run.
	ContinueOnError bool

	// UnicodeWords treats letters and digits of every script as word
	// characters, not only ASCII.
	UnicodeWords bool

	// OutputDir overrides the directory the output is written to. Empty
	// means next to the input.
	OutputDir string

	// MaxEntrySize caps the decompressed size of a single archive entry.
	MaxEntrySize int64
}

// DefaultConfig returns the reference configuration: Polychrome, the
// default palette and opacity, the full element set, .html and .xhtml.
func DefaultConfig() Config {
	return Config{
		Mode:         Polychrome,
		Palette:      append([]string(nil), DefaultPalette...),
		Opacity:      DefaultOpacity,
		Elements:     append([]string(nil), DefaultElements...),
		Extensions:   append([]string(nil), DefaultExtensions...),
		MaxEntrySize: maxDecompressSize,
	}
}

// fileConfig is the HCL shape of a configuration file. Attributes left
// out of the file keep the values already present.
type fileConfig struct {
	Mode            *string  `hcl:"mode,optional"`
	Palette         []string `hcl:"palette,optional"`
	Opacity         *float64 `hcl:"opacity,optional"`
	Elements        []string `hcl:"elements,optional"`
	Extensions      []string `hcl:"extensions,optional"`
	Workers         *int     `hcl:"workers,optional"`
	ContinueOnError *bool    `hcl:"continue_on_error,optional"`
	UnicodeWords    *bool    `hcl:"unicode_words,optional"`
	OutputDir       *string  `hcl:"output_dir,optional"`
	MaxEntrySize    *int64   `hcl:"max_entry_size,optional"`
}

// LoadConfigFile reads an HCL configuration file on top of base.
func LoadConfigFile(path string, base Config) (Config, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return base, goerrors.Wrap(diags, goerrors.CategoryBadInput, "failed to parse config file "+path).
			WithTextCode(CodeConfigParse)
	}

	var fc fileConfig
	if diags := gohcl.DecodeBody(f.Body, nil, &fc); diags.HasErrors() {
		return base, goerrors.Wrap(diags, goerrors.CategoryBadInput, "failed to decode config file "+path).
			WithTextCode(CodeConfigParse)
	}
	return fc.apply(base)
}

func (fc fileConfig) apply(cfg Config) (Config, error) {
	if fc.Mode != nil {
		m, err := ParseMode(*fc.Mode)
		if err != nil {
			return cfg, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid mode in config file").
				WithTextCode(CodeConfigInvalid)
		}
		cfg.Mode = m
	}
	if fc.Palette != nil {
		cfg.Palette = fc.Palette
	}
	if fc.Opacity != nil {
		cfg.Opacity = *fc.Opacity
	}
	if fc.Elements != nil {
		cfg.Elements = fc.Elements
	}
	if fc.Extensions != nil {
		cfg.Extensions = fc.Extensions
	}
	if fc.Workers != nil {
		cfg.Workers = *fc.Workers
	}
	if fc.ContinueOnError != nil {
		cfg.ContinueOnError = *fc.ContinueOnError
	}
	if fc.UnicodeWords != nil {
		cfg.UnicodeWords = *fc.UnicodeWords
	}
	if fc.OutputDir != nil {
		cfg.OutputDir = *fc.OutputDir
	}
	if fc.MaxEntrySize != nil {
		cfg.MaxEntrySize = *fc.MaxEntrySize
	}
	return cfg, nil
}

var (
	tagNamePattern   = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	extensionPattern = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)
)

// Validate checks the configuration and returns a validation error listing
// every offending field.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Mode, validation.In(Monochrome, Polychrome).Error("must be monochrome or polychrome")),
		validation.Field(&c.Palette,
			validation.When(c.Mode == Polychrome, validation.Required.Error("is required in polychrome mode")),
			validation.Each(validation.By(hexColor)),
		),
		validation.Field(&c.Opacity, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.Elements, validation.Required, validation.Each(validation.Match(tagNamePattern))),
		validation.Field(&c.Extensions, validation.Required, validation.Each(validation.Match(extensionPattern))),
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.MaxEntrySize, validation.Required, validation.Min(int64(1))),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid configuration").WithTextCode(CodeConfigInvalid)
	}
	return nil
}

// hexColor accepts CSS colours in #rgb or #rrggbb form.
func hexColor(value any) error {
	s, _ := value.(string)
	if _, err := colorful.Hex(expandShortHex(s)); err != nil {
		return validation.NewError("validation_hex_color", fmt.Sprintf("%q is not a hex colour", s))
	}
	return nil
}

// expandShortHex turns "#abc" into "#aabbcc".
func expandShortHex(s string) string {
	if len(s) != 4 || s[0] != '#' {
		return s
	}
	return string([]byte{'#', s[1], s[1], s[2], s[2], s[3], s[3]})
}

// workers resolves the effective worker count.
func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// renderer builds the renderer described by c.
func (c Config) renderer() Renderer {
	return Renderer{Mode: c.Mode, Opacity: c.Opacity, UnicodeWords: c.UnicodeWords}
}

// ParseElements resolves an element selection: "all" (or empty) for
// DefaultElements, "prose" for ProseElements, otherwise a comma separated
// list of tag names.
func ParseElements(s string) []string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "full":
		return append([]string(nil), DefaultElements...)
	case "prose":
		return append([]string(nil), ProseElements...)
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
