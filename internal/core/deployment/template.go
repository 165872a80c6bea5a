package deployment

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/valyala/fasttemplate"
)

// =============================================================================
// Template Types
// =============================================================================

// TimestampLayout is the layout used for ${timestamp}, always in UTC.
const TimestampLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// TemplateName identifies one of the configured templates.
type TemplateName string

const (
	TemplateFunctionDir TemplateName = "functionDir"
	TemplateMetaPath    TemplateName = "metaPath"
	TemplateDescription TemplateName = "description"
)

// Vars is the fixed variable set a template renders against.
type Vars struct {
	FunctionName string
	Now          time.Time
}

// fieldFormatters maps each placeholder name to the function producing its value.
var fieldFormatters = map[string]func(Vars) string{
	"functionName": func(v Vars) string { return v.FunctionName },
	"timestamp":    func(v Vars) string { return v.Now.UTC().Format(TimestampLayout) },
}

// Template is a compiled interpolation string. The source is split on "$$"
// and each piece is a fasttemplate joined back with a literal "$".
type Template struct {
	source string
	pieces []*fasttemplate.Template
}

// TemplateError reports malformed template syntax.
type TemplateError struct {
	Source  string
	Offset  int
	Message string
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q at offset %d: %s", e.Source, e.Offset, e.Message)
}

// =============================================================================
// Compilation
// =============================================================================

const (
	tagStart = "${"
	tagEnd   = "}"
	escaped  = "$$"
)

// CompileTemplate parses a template with ${field} placeholders.
//
// Supported fields are functionName and timestamp. "$$" produces a literal
// dollar sign; a "$" not followed by "{" or "$" is kept as-is.
//
// Example:
//
//	tmpl, _ := CompileTemplate("functions/${functionName}")
//	tmpl.Render(Vars{FunctionName: "worker"}) // returns "functions/worker"
func CompileTemplate(source string) (*Template, error) {
	t := &Template{source: source}
	base := 0
	for _, piece := range strings.Split(source, escaped) {
		tmpl, err := compilePiece(source, piece, base)
		if err != nil {
			return nil, err
		}
		t.pieces = append(t.pieces, tmpl)
		base += len(piece) + len(escaped)
	}
	return t, nil
}

// compilePiece parses one "$$"-free piece starting at base in source and
// checks every tag against fieldFormatters.
func compilePiece(source, piece string, base int) (*fasttemplate.Template, error) {
	tmpl, err := fasttemplate.NewTemplate(piece, tagStart, tagEnd)
	if err != nil {
		return nil, &TemplateError{Source: source, Offset: base + unterminatedAt(piece), Message: "unterminated placeholder"}
	}

	// Tags are reported in order, so each one starts at the next tagStart.
	from := 0
	_, err = tmpl.ExecuteFunc(io.Discard, func(_ io.Writer, tag string) (int, error) {
		at := from + strings.Index(piece[from:], tagStart)
		from = at + len(tagStart) + len(tag) + len(tagEnd)

		switch _, ok := fieldFormatters[tag]; {
		case tag == "":
			return 0, &TemplateError{Source: source, Offset: base + at, Message: "empty placeholder"}
		case !ok:
			return 0, &TemplateError{Source: source, Offset: base + at, Message: fmt.Sprintf("unknown field %q", tag)}
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return tmpl, nil
}

// unterminatedAt returns the offset of the first tagStart without a
// closing tagEnd, or -1.
func unterminatedAt(piece string) int {
	from := 0
	for {
		i := strings.Index(piece[from:], tagStart)
		if i < 0 {
			return -1
		}
		start := from + i
		j := strings.Index(piece[start+len(tagStart):], tagEnd)
		if j < 0 {
			return start
		}
		from = start + len(tagStart) + j + len(tagEnd)
	}
}

// Render produces the template output for vars.
func (t *Template) Render(vars Vars) string {
	rendered := make([]string, len(t.pieces))
	for i, tmpl := range t.pieces {
		rendered[i] = tmpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
			return io.WriteString(w, fieldFormatters[tag](vars))
		})
	}
	return strings.Join(rendered, "$")
}

// String returns the template source.
func (t *Template) String() string {
	return t.source
}

// =============================================================================
// Named Templates
// =============================================================================

// Templates holds the compiled templates of a configuration by name.
type Templates struct {
	byName map[TemplateName]*Template
}

// CompileTemplates compiles every source in sources. The error names the
// failing template.
func CompileTemplates(sources map[TemplateName]string) (Templates, error) {
	byName := make(map[TemplateName]*Template, len(sources))
	for name, src := range sources {
		tmpl, err := CompileTemplate(src)
		if err != nil {
			return Templates{}, &ConfigError{
				Field:   string(name) + "Template",
				Message: err.Error(),
				Err:     err,
			}
		}
		byName[name] = tmpl
	}
	return Templates{byName: byName}, nil
}

// Render renders the named template. Rendering a name that was never
// compiled is a programming error and panics.
func (t Templates) Render(name TemplateName, vars Vars) string {
	tmpl, ok := t.byName[name]
	if !ok {
		panic(fmt.Sprintf("deployment: template %q not compiled", name))
	}
	return tmpl.Render(vars)
}

// Source returns the source of the named template, or "" if absent.
func (t Templates) Source(name TemplateName) string {
	if tmpl, ok := t.byName[name]; ok {
		return tmpl.String()
	}
	return ""
}
