// Package eval implements the per-event execution context: dot-path lookups
// over the hook payload, a mutable state map shared by every action of one
// event, and `{placeholder}` template substitution.
package eval

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ormasoftchile/promptctl/pkg/event"
)

// statePrefix namespaces state keys in templates. Payload placeholders never
// carry it, so the two namespaces cannot collide.
const statePrefix = "state."

// Context wraps one event payload and its state map.
type Context struct {
	payload  event.Payload
	state    map[string]any
	renderer Renderer
	onSet    func(key string, value any)

	flat map[string]string // flattened payload, built on first render
}

// Option configures a Context.
type Option func(*Context)

// WithRenderer selects the renderer used by RenderE.
func WithRenderer(r Renderer) Option {
	return func(c *Context) { c.renderer = r }
}

// OnStateChange registers a callback invoked after every SetState.
func OnStateChange(fn func(key string, value any)) Option {
	return func(c *Context) { c.onSet = fn }
}

// New creates a context for a payload with an empty state map.
func New(p event.Payload, opts ...Option) *Context {
	c := &Context{
		payload:  p,
		state:    make(map[string]any),
		renderer: Lenient{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Payload returns the wrapped event payload.
func (c *Context) Payload() event.Payload {
	return c.payload
}

// Get resolves a dot-separated path against the payload. It returns def when
// a segment is missing or an intermediate value is not a mapping.
// Example: Get("tool_input.file_path", "") → "a.py"
func (c *Context) Get(path string, def any) any {
	var current any = c.payload.Raw()
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return def
		}
		next, ok := m[part]
		if !ok {
			return def
		}
		current = next
	}
	return current
}

// SetState stores a value visible to later actions as {state.<key>}.
func (c *Context) SetState(key string, value any) {
	c.state[key] = value
	if c.onSet != nil {
		c.onSet(key, value)
	}
}

// GetState returns a state value or def.
func (c *Context) GetState(key string, def any) any {
	if v, ok := c.state[key]; ok {
		return v
	}
	return def
}

// State returns a copy of the state map.
func (c *Context) State() map[string]any {
	out := make(map[string]any, len(c.state))
	for k, v := range c.state {
		out[k] = v
	}
	return out
}

// Render substitutes payload placeholders, then state placeholders. Unknown
// placeholders are left intact; Render never fails.
// Example: Render("lint {tool_input.file_path}") → "lint a.py"
func (c *Context) Render(tmpl string) string {
	out, _ := c.expand(tmpl)
	return out
}

// RenderE renders with the context's configured Renderer, which may reject
// unresolved placeholders.
func (c *Context) RenderE(tmpl string) (string, error) {
	return c.renderer.Render(c, tmpl)
}

// expand runs both substitution passes and reports the placeholders that
// remained unresolved.
func (c *Context) expand(tmpl string) (string, []string) {
	if !strings.Contains(tmpl, "{") {
		return tmpl, nil // fast path for literals
	}

	if c.flat == nil {
		c.flat = make(map[string]string)
		flatten(c.payload.Raw(), "", c.flat)
	}
	out := substitute(tmpl, func(key string) (string, bool) {
		if strings.HasPrefix(key, statePrefix) {
			return "", false
		}
		v, ok := c.flat[key]
		return v, ok
	})

	stateFlat := make(map[string]string, len(c.state))
	flatten(c.state, "", stateFlat)
	out = substitute(out, func(key string) (string, bool) {
		name, ok := strings.CutPrefix(key, statePrefix)
		if !ok {
			return "", false
		}
		v, ok := stateFlat[name]
		return v, ok
	})

	return out, placeholders(out)
}

// substitute replaces every {key} for which lookup succeeds.
func substitute(s string, lookup func(string) (string, bool)) string {
	var b strings.Builder
	b.Grow(len(s))
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			b.WriteString(s)
			return b.String()
		}
		rest := s[open+1:]
		end := strings.IndexAny(rest, "{}")
		if end < 0 || rest[end] == '{' {
			// no closing brace, or a nested opener: emit through it and rescan
			skip := open + 1
			if end >= 0 {
				skip = open + 1 + end
			}
			b.WriteString(s[:skip])
			s = s[skip:]
			continue
		}
		key := rest[:end]
		if v, ok := lookup(key); ok {
			b.WriteString(s[:open])
			b.WriteString(v)
		} else {
			b.WriteString(s[:open+1+end+1])
		}
		s = rest[end+1:]
	}
}

// placeholders lists {name} tokens still present in s. Shell-style ${VAR}
// references are not placeholders.
func placeholders(s string) []string {
	var found []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' || (i > 0 && s[i-1] == '$') {
			continue
		}
		end := strings.IndexByte(s[i+1:], '}')
		if end <= 0 {
			continue
		}
		key := s[i+1 : i+1+end]
		if isPlaceholderName(key) {
			found = append(found, key)
		}
	}
	return found
}

func isPlaceholderName(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '.', r == '-':
		default:
			return false
		}
	}
	return true
}

// flatten walks nested maps and records leaf values under dot-joined keys.
func flatten(data map[string]any, parent string, out map[string]string) {
	for k, v := range data {
		key := k
		if parent != "" {
			key = parent + "." + k
		}
		if m, ok := v.(map[string]any); ok {
			flatten(m, key, out)
			continue
		}
		out[key] = FormatValue(v)
	}
}

// FormatValue renders a payload or state value for substitution: strings
// verbatim, scalars in their literal form, nil as empty, and composite values
// as compact JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case fmt.Stringer:
		return val.String()
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

// Keys returns the flattened payload keys available to templates, sorted.
func (c *Context) Keys() []string {
	flat := make(map[string]string)
	flatten(c.payload.Raw(), "", flat)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
