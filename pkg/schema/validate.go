package schema

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/expr-lang/expr"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/promptctl/pkg/eval"
	"github.com/ormasoftchile/promptctl/pkg/event"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // dotted location (e.g., "handlers.lint.actions[0].script")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// HasErrors reports whether any finding has error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// ValidateFile performs the full 3-phase validation pipeline on a config file.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (handler and action rules)
func ValidateFile(p string) (*Config, []*ValidationError) {
	cfg, err := LoadFile(p)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	return cfg, Validate(cfg)
}

// Validate runs the semantic and domain phases on a decoded configuration.
func Validate(cfg *Config) []*ValidationError {
	errs := validateSemantic(cfg)
	errs = append(errs, ValidateDomain(cfg)...)
	return errs
}

func semanticError(msg string, args ...any) []*ValidationError {
	return []*ValidationError{{
		Phase:    "semantic",
		Message:  fmt.Sprintf(msg, args...),
		Severity: "error",
	}}
}

// validateSemantic validates the configuration against the generated JSON Schema.
func validateSemantic(cfg *Config) []*ValidationError {
	data, err := json.Marshal(cfg)
	if err != nil {
		return semanticError("marshal for schema validation: %v", err)
	}
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return semanticError("generate schema: %v", err)
	}
	schemaDoc, err := sjsonschema.UnmarshalJSON(strings.NewReader(string(schemaJSON)))
	if err != nil {
		return semanticError("unmarshal schema: %v", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("promptctl-v1.json", schemaDoc); err != nil {
		return semanticError("add schema resource: %v", err)
	}
	sch, err := c.Compile("promptctl-v1.json")
	if err != nil {
		return semanticError("compile schema: %v", err)
	}

	doc, err := sjsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return semanticError("unmarshal document: %v", err)
	}
	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return semanticError("%v", err)
		}
		var errs []*ValidationError
		for _, cause := range leafCauses(ve) {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Path:     strings.Join(cause.InstanceLocation, "."),
				Message:  fmt.Sprintf("%v", cause.ErrorKind),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

// leafCauses recursively collects all leaf validation errors.
func leafCauses(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, leafCauses(cause)...)
	}
	return flat
}

// ValidateDomain performs Phase 3: rules the JSON Schema cannot express.
func ValidateDomain(cfg *Config) []*ValidationError {
	var errs []*ValidationError
	add := func(p, severity, msg string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     p,
			Message:  fmt.Sprintf(msg, args...),
			Severity: severity,
		})
	}

	if cfg.Version != "" && !strings.HasPrefix(cfg.Version, "1") {
		add("version", "warning", "unrecognized version %q, expected %q", cfg.Version, CurrentVersion)
	}
	if _, err := eval.RendererFor(cfg.Templates); err != nil {
		add("templates", "error", "%v", err)
	}
	if cfg.Logging != nil {
		if err := cfg.Logging.Validate(); err != nil {
			add("logging", "error", "%v", err)
		}
	}

	for _, h := range cfg.OrderedHandlers() {
		base := "handlers." + h.Name
		if !event.IsKnown(h.Hook) {
			add(base+".hook", "error", "handler %q has unknown hook %q", h.Name, h.Hook)
		}
		if len(h.Actions) == 0 {
			add(base+".actions", "warning", "handler %q has no actions", h.Name)
		}
		if h.Match != nil {
			errs = append(errs, validateMatch(base+".match", h.Match)...)
		}
		for i, a := range h.Actions {
			errs = append(errs, ValidateAction(fmt.Sprintf("%s.actions[%d]", base, i), a)...)
		}
	}
	return errs
}

func validateMatch(p string, m *Match) []*ValidationError {
	var errs []*ValidationError
	add := func(field, msg string, args ...any) {
		errs = append(errs, &ValidationError{Phase: "domain", Path: p + "." + field, Message: fmt.Sprintf(msg, args...), Severity: "error"})
	}

	switch v := m.Tool.(type) {
	case nil, string:
	case []any:
		for i, item := range v {
			if _, ok := item.(string); !ok {
				add(fmt.Sprintf("tool[%d]", i), "tool names must be strings, got %T", item)
			}
		}
	case []string:
	default:
		add("tool", "tool must be a string or a list of strings, got %T", v)
	}

	if m.FilePattern != "" {
		for _, part := range strings.Split(m.FilePattern, "/") {
			if _, err := path.Match(part, ""); err != nil {
				add("file_pattern", "invalid glob %q: %v", m.FilePattern, err)
				break
			}
		}
	}
	if m.When != "" {
		if _, err := expr.Compile(m.When, expr.Env(event.NewPayload(nil).Env()), expr.AsBool()); err != nil {
			add("when", "invalid expression: %v", err)
		}
	}
	return errs
}

// ValidateAction checks the fields an action type requires.
func ValidateAction(p string, a Action) []*ValidationError {
	var errs []*ValidationError
	add := func(field, msg string, args ...any) {
		loc := p
		if field != "" {
			loc += "." + field
		}
		errs = append(errs, &ValidationError{Phase: "domain", Path: loc, Message: fmt.Sprintf(msg, args...), Severity: "error"})
	}

	switch a.Action {
	case ActionPrompt:
		if a.Template == "" {
			add("template", "prompt action requires 'template'")
		}
	case ActionCommand:
		if a.Script == "" {
			add("script", "command action requires 'script'")
		}
	case ActionGit:
		switch a.Operation {
		case GitStage:
			if len(a.Files) == 0 {
				add("files", "git stage requires 'files'")
			}
		case GitCommit:
			if a.Message == "" {
				add("message", "git commit requires 'message'")
			}
		default:
			add("operation", "unknown git operation %q: must be stage or commit", a.Operation)
		}
	case ActionValidate:
		for i, c := range a.Checks {
			loc := fmt.Sprintf("checks[%d]", i)
			switch c.Type {
			case CheckFileExists:
				if c.Path == "" {
					add(loc+".path", "file_exists check requires 'path'")
				}
			case CheckCommandSucceeds:
				if c.Command == "" {
					add(loc+".command", "command_succeeds check requires 'command'")
				}
			default:
				add(loc+".type", "unknown check type %q", c.Type)
			}
		}
	case ActionConditional:
		if a.Condition == "" {
			add("condition", "conditional action requires 'condition'")
		}
		for i, b := range a.Then {
			errs = append(errs, ValidateAction(fmt.Sprintf("%s.then[%d]", p, i), b)...)
		}
		for i, b := range a.Else {
			errs = append(errs, ValidateAction(fmt.Sprintf("%s.else[%d]", p, i), b)...)
		}
	default:
		add("action", "unknown action type %q", a.Action)
	}

	if _, err := a.TimeoutDuration(); err != nil {
		add("timeout", "invalid duration %q", a.Timeout)
	}
	return errs
}
