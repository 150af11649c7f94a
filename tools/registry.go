/*
Package tools implements the banking data-retrieval tools exposed to the
reasoning model: account balance, transaction history, credit card info and
document search.

Every tool is registered in a fixed Registry with its JSON schema and handler.
Handlers never return Go errors to the caller; failures become JSON error
envelopes that are fed back to the model as observations so it can
self-correct or apologize.
*/
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
)

var registryLogger = logrus.WithField("component", "toolRegistry")

// Handler executes one tool call. args is the decoded arguments object; the
// returned string is a serialized JSON envelope (success or error variant).
type Handler func(ctx context.Context, args map[string]any) string

// Spec describes one registered tool: its function-calling schema plus the
// handler that serves it.
type Spec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema "properties" object
	Required    []string
	Handler     Handler
}

// Registry is a fixed name→tool mapping validated at registration time.
type Registry struct {
	specs map[string]*Spec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*Spec)}
}

// Register adds a tool, rejecting incomplete or duplicate specs up front so
// that call-time dispatch never needs to probe for missing pieces.
func (r *Registry) Register(spec *Spec) error {
	switch {
	case spec == nil:
		return fmt.Errorf("register tool: nil spec")
	case spec.Name == "":
		return fmt.Errorf("register tool: empty name")
	case spec.Description == "":
		return fmt.Errorf("register tool %s: empty description", spec.Name)
	case spec.Parameters == nil:
		return fmt.Errorf("register tool %s: missing parameter schema", spec.Name)
	case spec.Handler == nil:
		return fmt.Errorf("register tool %s: missing handler", spec.Name)
	}
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("register tool %s: already registered", spec.Name)
	}
	r.specs[spec.Name] = spec
	registryLogger.WithField("tool", spec.Name).Debug("Tool registered")
	return nil
}

// Names returns the registered tool names in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions renders the registry as function-calling tool definitions for
// the model.
func (r *Registry) Definitions() []llms.Tool {
	defs := make([]llms.Tool, 0, len(r.specs))
	for _, name := range r.Names() {
		spec := r.specs[name]
		required := spec.Required
		if required == nil {
			required = []string{}
		}
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": spec.Parameters,
					"required":   required,
				},
			},
		})
	}
	return defs
}

// Dispatch decodes the model-supplied arguments and runs the named tool. All
// failure paths return an error envelope, never a Go error.
func (r *Registry) Dispatch(ctx context.Context, name, argumentsJSON string) string {
	startTime := time.Now()
	callLogger := registryLogger.WithField("tool", name)

	spec, ok := r.specs[name]
	if !ok {
		callLogger.Warn("Unknown tool requested")
		return errorEnvelope(ErrKindUnknownTool,
			fmt.Sprintf("Tool '%s' is not available.", name),
			"Use one of the registered banking tools.")
	}

	args := make(map[string]any)
	if argumentsJSON != "" {
		if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
			callLogger.WithError(err).Warn("Malformed tool arguments")
			return errorEnvelope(ErrKindValidation,
				"Tool arguments were not valid JSON.",
				"Retry the call with a well-formed JSON arguments object.")
		}
	}

	result := spec.Handler(ctx, args)

	callLogger.WithFields(logrus.Fields{
		"executionTime": time.Since(startTime),
		"resultLength":  len(result),
	}).Info("Tool call completed")
	return result
}
