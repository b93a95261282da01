package entity

import "github.com/joseph-ayodele/cardlead/constants"

// ManualContact carries operator-typed contact fields used instead of card extraction.
type ManualContact struct {
	Company    string `json:"company"`
	Department string `json:"department"`
	Position   string `json:"position"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

// PipelineContext is the operator-entered information accompanying a card.
// It is passed by value and never mutated by the pipeline.
type PipelineContext struct {
	Assignee            string              `json:"assignee"`
	SourceAssignee      string              `json:"source_assignee,omitempty"`
	ProposalPlan        string              `json:"proposal_plan"`
	Need                string              `json:"need"`
	Authority           string              `json:"authority"`
	Timing              string              `json:"timing"`
	CurrentSituation    string              `json:"current_situation,omitempty"`
	Problem             string              `json:"problem,omitempty"`
	MostImportantNeed   string              `json:"most_important_need,omitempty"`
	ProposalContent     string              `json:"proposal_content,omitempty"`
	ConsiderationReason string              `json:"consideration_reason,omitempty"`
	VoiceRecorderLoan   string              `json:"voice_recorder_loan,omitempty"`
	InputMode           constants.InputMode `json:"input_mode"`
	Manual              ManualContact       `json:"manual"`
}

// IsManual reports whether contact fields come from the operator rather than a card.
func (c PipelineContext) IsManual() bool {
	return c.InputMode == constants.InputModeManual
}
