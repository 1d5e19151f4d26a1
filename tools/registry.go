package tools

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Menzorg/rugpt/llm"
)

// Registry maps tool names to invocable tools. Registration happens at
// startup; after that the registry is read-only and safe for
// concurrent use without locking.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name()] = tool
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (r *Registry) ToolNames() string {
	all := r.All()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Name()
	}
	return strings.Join(names, ", ")
}

// Resolve maps a role's declared tool-name list to tool handles in
// declaration order. Names with no registered handler are skipped with
// a warning so a role carrying a stale tool name degrades instead of
// failing outright.
func (r *Registry) Resolve(names []string) []Tool {
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		t, ok := r.tools[name]
		if !ok {
			slog.Warn("tool_unresolved", "tool", name)
			continue
		}
		out = append(out, t)
	}
	return out
}

// Descriptors converts tools to the wire form sent to the model.
func Descriptors(ts []Tool) []llm.Tool {
	out := make([]llm.Tool, 0, len(ts))
	for _, t := range ts {
		out = append(out, llm.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  json.RawMessage(t.ParameterSchema()),
		})
	}
	return out
}

func (r *Registry) FormatToolDescriptions() string {
	all := r.All()
	var b strings.Builder
	for _, t := range all {
		fmt.Fprintf(&b, "### %s\n%s\nParameters:\n```json\n%s\n```\n\n", t.Name(), t.Description(), t.ParameterSchema())
	}
	return b.String()
}
