package eval

import (
	"fmt"
	"strings"
)

// Renderer turns a template into its rendered form for a context.
type Renderer interface {
	Render(c *Context, tmpl string) (string, error)
}

// Lenient leaves unresolved placeholders in the output. It is the default.
type Lenient struct{}

// Render implements Renderer.
func (Lenient) Render(c *Context, tmpl string) (string, error) {
	return c.Render(tmpl), nil
}

// Strict fails when a placeholder survives both substitution passes.
type Strict struct{}

// Render implements Renderer.
func (Strict) Render(c *Context, tmpl string) (string, error) {
	out, missing := c.expand(tmpl)
	if len(missing) > 0 {
		return out, &UnresolvedError{Template: tmpl, Missing: missing}
	}
	return out, nil
}

// UnresolvedError lists placeholders a strict render could not resolve.
type UnresolvedError struct {
	Template string
	Missing  []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved placeholders {%s} in %q", strings.Join(e.Missing, "}, {"), e.Template)
}

// RendererFor maps a configuration mode ("", "lenient", "strict") to a Renderer.
func RendererFor(mode string) (Renderer, error) {
	switch mode {
	case "", "lenient":
		return Lenient{}, nil
	case "strict":
		return Strict{}, nil
	default:
		return nil, fmt.Errorf("unknown template mode %q", mode)
	}
}
