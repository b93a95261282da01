package entity

import "github.com/joseph-ayodele/cardlead/constants"

// ExtractionResult is the flat field mapping read off a card, keyed by the
// card field names in constants. An empty mapping means extraction gave up.
type ExtractionResult map[string]string

// Get returns the value for field or "".
func (r ExtractionResult) Get(field string) string {
	if r == nil {
		return ""
	}
	return r[field]
}

// Clone returns an independent copy.
func (r ExtractionResult) Clone() ExtractionResult {
	out := make(ExtractionResult, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Empty reports whether nothing was extracted.
func (r ExtractionResult) Empty() bool { return len(r) == 0 }

// FromManual builds the mapping the assembler expects out of typed contact fields.
func FromManual(m ManualContact) ExtractionResult {
	out := ExtractionResult{}
	set := func(field, v string) {
		if v != "" {
			out[field] = v
		}
	}
	set(constants.FieldCompany, m.Company)
	set(constants.FieldDepartment, m.Department)
	set(constants.FieldRole, m.Position)
	set(constants.FieldName, m.Name)
	set(constants.FieldEmail, m.Email)
	set(constants.FieldPhone, m.Phone)
	return out
}
