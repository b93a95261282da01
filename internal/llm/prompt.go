package llm

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/cardlead/constants"
)

// Mode selects which instruction is sent with a card image.
type Mode string

const (
	// ModeInferred asks for card fields plus industry, department and role
	// picked from the closed vocabularies.
	ModeInferred Mode = "inferred"
	// ModeRaw asks for a literal transcription of the card fields only.
	ModeRaw Mode = "raw"
)

// ParseMode accepts "inferred" or "raw"; "" means inferred.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeInferred:
		return ModeInferred, nil
	case ModeRaw:
		return ModeRaw, nil
	}
	return "", fmt.Errorf("unknown extraction mode %q", s)
}

// BuildInstruction composes the text sent alongside the image.
func BuildInstruction(mode Mode) string {
	fields := strings.Join(constants.CardFields, "、")
	if mode == ModeRaw {
		return "これは名刺の画像です。" + fields +
			"の情報を、名刺に書かれている文字どおりに読み取り、階層のない有効なJSON形式のみで返してください。" +
			"読み取れない項目は省略してください。推測や補完はしないでください。"
	}

	var b strings.Builder
	b.WriteString("これは名刺の画像です。")
	b.WriteString(fields)
	b.WriteString("の情報を有効なJSON形式のみで返してください。ただし、業種、部署、役職は以下のリストから一つ選択してください。\n")
	b.WriteString("【推論項目】\n")
	writeVocab(&b, 1, constants.FieldIndustry, constants.Industries())
	writeVocab(&b, 2, constants.FieldDepartment, constants.Departments())
	writeVocab(&b, 3, constants.FieldRole, constants.Roles())
	return b.String()
}

func writeVocab(b *strings.Builder, n int, label string, values []string) {
	fmt.Fprintf(b, "%d. %s：以下のリストから必ず一つ選んでください。\n    [%s]\n", n, label, strings.Join(values, ", "))
}
