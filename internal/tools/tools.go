// ABOUTME: Structured-output tool definitions exposed to the agent runtime
// ABOUTME: Validates tool-call input against fixed schemas and tags it as metadata

package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fitversal/coach-gateway/internal/metadata"
)

// Tool names the agent runtime is allowed to invoke. The first three are
// in-process data-shaping tools; the research tools are executed by the
// runtime itself and only appear here for the allow-list.
const (
	ToolPresentChoices         = "present_choices"
	ToolCreateTemplateProposal = "create_template_proposal"
	ToolCreateExerciseProposal = "create_exercise_proposal"
	ToolWebSearch              = "WebSearch"
	ToolWebFetch               = "WebFetch"
)

// ErrUnknownTool is returned when a tool name is not a structured-output tool.
var ErrUnknownTool = errors.New("unknown structured-output tool")

// Handler validates a tool's raw JSON input and returns it tagged as metadata.
// Handlers perform no side effects.
type Handler func(input json.RawMessage) (metadata.Metadata, error)

var handlers = map[string]Handler{
	ToolPresentChoices:         presentChoices,
	ToolCreateTemplateProposal: createTemplateProposal,
	ToolCreateExerciseProposal: createExerciseProposal,
}

// AllowedTools returns the fixed tool allow-list sent to the runtime.
// No tool outside this list may be invoked.
func AllowedTools() []string {
	return []string{
		ToolWebSearch,
		ToolWebFetch,
		ToolPresentChoices,
		ToolCreateTemplateProposal,
		ToolCreateExerciseProposal,
	}
}

// IsStructuredOutput reports whether name is one of the in-process
// structured-output tools.
func IsStructuredOutput(name string) bool {
	_, ok := handlers[name]
	return ok
}

// Extract runs the named structured-output tool over the given call input.
// Returns ErrUnknownTool for names outside the registry.
func Extract(name string, input json.RawMessage) (metadata.Metadata, error) {
	handler, ok := handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return handler(input)
}

func presentChoices(input json.RawMessage) (metadata.Metadata, error) {
	var m metadata.MultipleChoice
	if err := json.Unmarshal(input, &m); err != nil {
		return nil, fmt.Errorf("present_choices: invalid input: %w", err)
	}
	if m.Question == "" {
		return nil, errors.New("present_choices: question is required")
	}
	if len(m.Options) == 0 {
		return nil, errors.New("present_choices: at least one option is required")
	}
	for i, opt := range m.Options {
		if opt.ID == "" || opt.Label == "" {
			return nil, fmt.Errorf("present_choices: option %d requires id and label", i)
		}
	}
	m.Type = metadata.TypeMultipleChoice
	return &m, nil
}

func createTemplateProposal(input json.RawMessage) (metadata.Metadata, error) {
	var m metadata.TemplateProposal
	if err := json.Unmarshal(input, &m); err != nil {
		return nil, fmt.Errorf("create_template_proposal: invalid input: %w", err)
	}
	if m.Name == "" {
		return nil, errors.New("create_template_proposal: name is required")
	}
	if len(m.Exercises) == 0 {
		return nil, errors.New("create_template_proposal: at least one exercise is required")
	}
	for i, ex := range m.Exercises {
		if ex.Name == "" || ex.MuscleGroup == "" {
			return nil, fmt.Errorf("create_template_proposal: exercise %d requires name and muscleGroup", i)
		}
		if ex.Sets <= 0 {
			return nil, fmt.Errorf("create_template_proposal: exercise %d requires positive sets", i)
		}
		if ex.Reps == "" {
			return nil, fmt.Errorf("create_template_proposal: exercise %d requires reps", i)
		}
	}
	m.Type = metadata.TypeTemplateProposal
	return &m, nil
}

func createExerciseProposal(input json.RawMessage) (metadata.Metadata, error) {
	var m metadata.ExerciseProposal
	if err := json.Unmarshal(input, &m); err != nil {
		return nil, fmt.Errorf("create_exercise_proposal: invalid input: %w", err)
	}
	if m.Name == "" {
		return nil, errors.New("create_exercise_proposal: name is required")
	}
	if m.MuscleGroup == "" {
		return nil, errors.New("create_exercise_proposal: muscleGroup is required")
	}
	m.Type = metadata.TypeExerciseProposal
	return &m, nil
}
