// ABOUTME: Tagged metadata union attached to assistant messages
// ABOUTME: Defines choice menus and proposal payloads with JSON encode/decode

package metadata

import (
	"encoding/json"
	"fmt"
)

// Type discriminates the metadata variants.
type Type string

const (
	TypeMultipleChoice   Type = "multiple_choice"
	TypeTemplateProposal Type = "template_proposal"
	TypeExerciseProposal Type = "exercise_proposal"
)

// Metadata is the structured payload an assistant message may carry.
// At most one metadata object is attached per message.
type Metadata interface {
	MetadataType() Type
}

// ChoiceOption is a single selectable option in a choice menu.
type ChoiceOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// MultipleChoice asks the user to pick from a fixed set of options.
type MultipleChoice struct {
	Type     Type           `json:"type"`
	Question string         `json:"question"`
	Options  []ChoiceOption `json:"options"`
}

func (m *MultipleChoice) MetadataType() Type { return TypeMultipleChoice }

// TemplateExercise is one exercise slot within a proposed workout template.
type TemplateExercise struct {
	Name        string `json:"name"`
	Sets        int    `json:"sets"`
	Reps        string `json:"reps"`
	MuscleGroup string `json:"muscleGroup"`
}

// TemplateProposal is a proposed workout template.
// Optional fields are pointers so absence survives a storage round-trip.
type TemplateProposal struct {
	Type              Type               `json:"type"`
	Name              string             `json:"name"`
	Description       *string            `json:"description,omitempty"`
	Exercises         []TemplateExercise `json:"exercises"`
	EstimatedDuration *int               `json:"estimatedDuration,omitempty"`
}

func (m *TemplateProposal) MetadataType() Type { return TypeTemplateProposal }

// ExerciseProposal is a proposed single exercise definition.
type ExerciseProposal struct {
	Type         Type    `json:"type"`
	Name         string  `json:"name"`
	MuscleGroup  string  `json:"muscleGroup"`
	Category     *string `json:"category,omitempty"`
	Equipment    *string `json:"equipment,omitempty"`
	Difficulty   *string `json:"difficulty,omitempty"`
	Instructions *string `json:"instructions,omitempty"`
}

func (m *ExerciseProposal) MetadataType() Type { return TypeExerciseProposal }

// Encode serializes metadata for storage, forcing the type discriminator
// to match the concrete variant.
func Encode(m Metadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	switch v := m.(type) {
	case *MultipleChoice:
		v.Type = TypeMultipleChoice
	case *TemplateProposal:
		v.Type = TypeTemplateProposal
	case *ExerciseProposal:
		v.Type = TypeExerciseProposal
	default:
		return nil, fmt.Errorf("unknown metadata variant %T", m)
	}
	return json.Marshal(m)
}

// Decode deserializes a stored metadata blob back into its tagged variant.
// Unknown or missing types decode to (nil, nil) so newer payloads written by
// future versions read back as "no metadata" instead of failing.
func Decode(data []byte) (Metadata, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var probe struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding metadata envelope: %w", err)
	}

	switch probe.Type {
	case TypeMultipleChoice:
		var m MultipleChoice
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decoding multiple_choice metadata: %w", err)
		}
		return &m, nil
	case TypeTemplateProposal:
		var m TemplateProposal
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decoding template_proposal metadata: %w", err)
		}
		return &m, nil
	case TypeExerciseProposal:
		var m ExerciseProposal
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decoding exercise_proposal metadata: %w", err)
		}
		return &m, nil
	default:
		return nil, nil
	}
}
