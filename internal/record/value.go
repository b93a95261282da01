package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the destination property type of a Value.
type Kind string

const (
	KindTitle       Kind = "title"
	KindRichText    Kind = "rich_text"
	KindSelect      Kind = "select"
	KindMultiSelect Kind = "multi_select"
	KindPhone       Kind = "phone_number"
	KindEmail       Kind = "email"
	KindDate        Kind = "date"
	KindCheckbox    Kind = "checkbox"
	KindNumber      Kind = "number"
	KindPeople      Kind = "people"
)

// DateLayout is the timestamp form written into date properties.
const DateLayout = "2006-01-02T15:04:05"

// maxTextRunes is the per-segment limit of the destination's text objects.
const maxTextRunes = 2000

// Value is one typed destination property. Only the fields matching Kind are
// meaningful; use the constructors rather than building it directly.
type Value struct {
	Kind     Kind
	Text     string     // title, rich_text; "" encodes as an empty list
	Str      *string    // select, phone_number, email; nil encodes as null
	Names    []string   // multi_select names, people ids
	Date     *time.Time // nil encodes as null
	Checkbox bool
	Number   *float64
}

func Title(s string) Value { return Value{Kind: KindTitle, Text: s} }
func RichText(s string) Value { return Value{Kind: KindRichText, Text: s} }

// Select sets the option name; "" is a null select.
func Select(name string) Value { return Value{Kind: KindSelect, Str: optional(name)} }

func MultiSelect(names ...string) Value {
	return Value{Kind: KindMultiSelect, Names: nonEmpty(names)}
}

// Phone and Email encode "" as null.
func Phone(s string) Value { return Value{Kind: KindPhone, Str: optional(s)} }
func Email(s string) Value { return Value{Kind: KindEmail, Str: optional(s)} }

func Date(t *time.Time) Value { return Value{Kind: KindDate, Date: t} }
func Checkbox(b bool) Value { return Value{Kind: KindCheckbox, Checkbox: b} }
func Number(n *float64) Value { return Value{Kind: KindNumber, Number: n} }
func People(ids ...string) Value {
	return Value{Kind: KindPeople, Names: nonEmpty(ids)}
}

// IsNull reports whether the value carries nothing.
func (v Value) IsNull() bool {
	switch v.Kind {
	case KindTitle, KindRichText:
		return v.Text == ""
	case KindSelect, KindPhone, KindEmail:
		return v.Str == nil
	case KindMultiSelect, KindPeople:
		return len(v.Names) == 0
	case KindDate:
		return v.Date == nil
	case KindNumber:
		return v.Number == nil
	}
	return false
}

// String returns the plain text form used in logs and tests.
func (v Value) String() string {
	switch v.Kind {
	case KindTitle, KindRichText:
		return v.Text
	case KindSelect, KindPhone, KindEmail:
		if v.Str == nil {
			return ""
		}
		return *v.Str
	case KindMultiSelect, KindPeople:
		return fmt.Sprint(v.Names)
	case KindDate:
		if v.Date == nil {
			return ""
		}
		return v.Date.Format(DateLayout)
	case KindCheckbox:
		return fmt.Sprint(v.Checkbox)
	case KindNumber:
		if v.Number == nil {
			return ""
		}
		return fmt.Sprint(*v.Number)
	}
	return ""
}

type textObject struct {
	Type string `json:"type"`
	Text struct {
		Content string `json:"content"`
	} `json:"text"`
}

type named struct {
	Name string `json:"name"`
}

type user struct {
	Object string `json:"object"`
	ID     string `json:"id"`
}

// MarshalJSON encodes the property in the destination database's wire shape.
func (v Value) MarshalJSON() ([]byte, error) {
	var body any
	switch v.Kind {
	case KindTitle, KindRichText:
		body = textObjects(v.Text)
	case KindSelect:
		if v.Str != nil {
			body = named{Name: *v.Str}
		}
	case KindMultiSelect:
		opts := make([]named, 0, len(v.Names))
		for _, n := range v.Names {
			opts = append(opts, named{Name: n})
		}
		body = opts
	case KindPhone, KindEmail:
		body = v.Str
	case KindDate:
		if v.Date != nil {
			body = map[string]string{"start": v.Date.Format(DateLayout)}
		}
	case KindCheckbox:
		body = v.Checkbox
	case KindNumber:
		body = v.Number
	case KindPeople:
		users := make([]user, 0, len(v.Names))
		for _, id := range v.Names {
			users = append(users, user{Object: "user", ID: id})
		}
		body = users
	default:
		return nil, fmt.Errorf("record: unknown property kind %q", v.Kind)
	}
	return json.Marshal(map[string]any{string(v.Kind): body})
}

// Native returns the value as plain Go data for document stores.
func (v Value) Native() any {
	switch v.Kind {
	case KindTitle, KindRichText:
		return v.Text
	case KindSelect, KindPhone, KindEmail:
		if v.Str == nil {
			return nil
		}
		return *v.Str
	case KindMultiSelect, KindPeople:
		out := make([]string, len(v.Names))
		copy(out, v.Names)
		return out
	case KindDate:
		if v.Date == nil {
			return nil
		}
		return *v.Date
	case KindCheckbox:
		return v.Checkbox
	case KindNumber:
		if v.Number == nil {
			return nil
		}
		return *v.Number
	}
	return nil
}

func textObjects(s string) []textObject {
	runes := []rune(s)
	out := make([]textObject, 0, len(runes)/maxTextRunes+1)
	for len(runes) > 0 {
		n := min(len(runes), maxTextRunes)
		var t textObject
		t.Type = "text"
		t.Text.Content = string(runes[:n])
		out = append(out, t)
		runes = runes[n:]
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
