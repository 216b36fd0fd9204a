// Package models defines the ephemeral conversation data bag built for synthesis.
package models

// Default values applied when a session never answered the corresponding node.
const (
	// DefaultUserName is the friendly placeholder used when no name was collected.
	DefaultUserName = "friend"
	// DefaultPrimaryGoal is the generic goal used when no goal was collected.
	DefaultPrimaryGoal = "improve overall fitness and feel better day to day"
)

// FieldKind identifies the payload shape of a FieldValue.
type FieldKind string

const (
	FieldKindString     FieldKind = "string"
	FieldKindStringList FieldKind = "string_list"
	FieldKindNumber     FieldKind = "number"
)

// FieldValue is a tagged variant for one extracted answer. It replaces an
// untyped per-field bag with explicit accessors per expected shape; each
// accessor falls back to a zero-adjacent conversion when the stored shape
// differs from the one requested.
type FieldValue struct {
	Kind FieldKind `json:"kind"`
	Str  string    `json:"str,omitempty"`
	List []string  `json:"list,omitempty"`
	Num  float64   `json:"num,omitempty"`
}

// StringField wraps a string into a FieldValue.
func StringField(s string) FieldValue { return FieldValue{Kind: FieldKindString, Str: s} }

// StringListField wraps a string list into a FieldValue.
func StringListField(ss []string) FieldValue { return FieldValue{Kind: FieldKindStringList, List: ss} }

// NumberField wraps a number into a FieldValue.
func NumberField(n float64) FieldValue { return FieldValue{Kind: FieldKindNumber, Num: n} }

// AsString returns the string payload. List values join with ", ", numbers
// format with %g, so the accessor never loses the answer outright.
func (f FieldValue) AsString() string {
	switch f.Kind {
	case FieldKindString:
		return f.Str
	case FieldKindStringList:
		out := ""
		for i, s := range f.List {
			if i > 0 {
				out += ", "
			}
			out += s
		}
		return out
	case FieldKindNumber:
		return trimFloat(f.Num)
	default:
		return ""
	}
}

// AsStringList returns the list payload. A string value becomes a single-item
// list; a number value yields nil.
func (f FieldValue) AsStringList() []string {
	switch f.Kind {
	case FieldKindStringList:
		return f.List
	case FieldKindString:
		if f.Str == "" {
			return nil
		}
		return []string{f.Str}
	default:
		return nil
	}
}

// AsNumber returns the numeric payload, or 0 when the stored shape is not numeric.
func (f FieldValue) AsNumber() float64 {
	if f.Kind == FieldKindNumber {
		return f.Num
	}
	return 0
}

func trimFloat(n float64) string {
	v := NumberValue(n)
	return v.TextContent()
}

// ConversationData is the derived, non-persisted input to persona synthesis,
// rebuilt from a session's responses on every synthesis run.
type ConversationData struct {
	UserName    string                `json:"user_name"`
	PrimaryGoal string                `json:"primary_goal"`
	Fields      map[DataKey]FieldValue `json:"fields"`
}
