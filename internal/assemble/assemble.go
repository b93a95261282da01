package assemble

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/width"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/common"
	"github.com/joseph-ayodele/cardlead/internal/entity"
	"github.com/joseph-ayodele/cardlead/internal/record"
)

var reLeadDate = regexp.MustCompile(`^\d{4}/\d{1,2}/\d{1,2}$`)

// ParseLeadDate reads a YYYY/M/D lead date. An empty string means midnight of
// the day of now, in now's location. Anything else, including dates that do
// not exist on the calendar, is a validation error.
func ParseLeadDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	}
	if !reLeadDate.MatchString(s) {
		return time.Time{}, common.ValidationError{Field: "lead_date", Value: s, Message: "must be YYYY/M/D"}
	}
	parts := strings.Split(s, "/")
	y, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	d, _ := strconv.Atoi(parts[2])
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, now.Location())
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, common.ValidationError{Field: "lead_date", Value: s, Message: "is not a calendar date"}
	}
	return t, nil
}

var personaByScore = map[int]string{
	3: "D",
	4: "C",
	5: "C",
	6: "B",
	7: "B",
	8: "A",
	9: "A",
}

// Persona maps the need, authority and timing scores to a label. If any score
// is not an integer all three count as zero; sums outside the table give "D".
func Persona(need, authority, timing string) string {
	total := 0
	for _, s := range []string{need, authority, timing} {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			total = 0
			break
		}
		total += n
	}
	if label, ok := personaByScore[total]; ok {
		return label
	}
	return "D"
}

// Region returns the first whitespace-separated token of an address.
// Ideographic spaces separate tokens too.
func Region(address string) string {
	fields := strings.FieldsFunc(address, unicode.IsSpace)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

var hearingSections = []struct {
	label string
	value func(entity.PipelineContext) string
}{
	{"現状", func(c entity.PipelineContext) string { return c.CurrentSituation }},
	{"問題", func(c entity.PipelineContext) string { return c.Problem }},
	{"最重要ニーズ", func(c entity.PipelineContext) string { return c.MostImportantNeed }},
	{"提案内容", func(c entity.PipelineContext) string { return c.ProposalContent }},
	{"検討理由", func(c entity.PipelineContext) string { return c.ConsiderationReason }},
}

// HearingMemo joins the non-empty hearing notes as "■label\nvalue" blocks
// separated by a blank line.
func HearingMemo(pc entity.PipelineContext) string {
	var blocks []string
	for _, s := range hearingSections {
		if v := strings.TrimSpace(s.value(pc)); v != "" {
			blocks = append(blocks, "■"+s.label+"\n"+v)
		}
	}
	return strings.Join(blocks, "\n\n")
}

// foldContact converts full-width digits, letters and symbols to ASCII.
func foldContact(s string) string {
	return strings.TrimSpace(width.Fold.String(strings.TrimSpace(s)))
}

// Options holds the fixed values stamped onto every record.
type Options struct {
	DefaultTag           string
	DefaultStatus        string
	UnknownAssigneeLabel string
	// AssigneeUserIDs maps assignee names to destination user ids.
	AssigneeUserIDs map[string]string
	Now             func() time.Time
}

// Assembler builds destination records. Apart from its clock it is a pure function.
type Assembler struct {
	opts Options
}

// New fills unset options with their defaults.
func New(opts Options) *Assembler {
	if opts.DefaultTag == "" {
		opts.DefaultTag = "NexTech"
	}
	if opts.DefaultStatus == "" {
		opts.DefaultStatus = "メール予定"
	}
	if opts.UnknownAssigneeLabel == "" {
		opts.UnknownAssigneeLabel = "担当者不明"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Assembler{opts: opts}
}

// Assemble turns an extraction result and the operator context into a
// complete record. The only error is an invalid lead date.
func (a *Assembler) Assemble(res entity.ExtractionResult, pc entity.PipelineContext, leadDate string) (record.Properties, error) {
	date, err := ParseLeadDate(leadDate, a.opts.Now())
	if err != nil {
		return nil, err
	}

	field := func(name string) string { return strings.TrimSpace(res.Get(name)) }
	address := field(constants.FieldAddress)

	industry := ""
	if ind, ok := constants.CanonicalIndustry(field(constants.FieldIndustry)); ok {
		industry = string(ind)
	}

	assignees := record.MultiSelect(strings.TrimSpace(pc.Assignee), strings.TrimSpace(pc.SourceAssignee))
	if assignees.IsNull() {
		assignees = record.MultiSelect(a.opts.UnknownAssigneeLabel)
	}

	var userIDs []string
	for _, name := range assignees.Names {
		if id, ok := a.opts.AssigneeUserIDs[name]; ok {
			userIDs = append(userIDs, id)
		}
	}

	return record.Properties{
		PropCompany:       record.Title(field(constants.FieldCompany)),
		PropContactName:   record.RichText(field(constants.FieldName)),
		PropDepartment:    record.RichText(field(constants.FieldDepartment)),
		PropOfficialDept:  record.RichText(field(constants.FieldOfficialDept)),
		PropPosition:      record.RichText(field(constants.FieldRole)),
		PropIndustry:      record.Select(industry),
		PropPhone:         record.Phone(foldContact(field(constants.FieldPhone))),
		PropMobile:        record.Phone(foldContact(field(constants.FieldMobile))),
		PropEmail:         record.Email(foldContact(field(constants.FieldEmail))),
		PropPostalCode:    record.RichText(foldContact(field(constants.FieldPostalCode))),
		PropPrefecture:    record.RichText(Region(address)),
		PropAddress:       record.RichText(address),
		PropLeadDate:      record.Date(&date),
		PropAssignee:      assignees,
		PropAssigneeUsers: record.People(userIDs...),
		PropHearingMemo:   record.RichText(HearingMemo(pc)),
		PropVoiceRecorder: record.RichText(strings.TrimSpace(pc.VoiceRecorderLoan)),
		PropProduct:       record.MultiSelect(strings.TrimSpace(pc.ProposalPlan)),
		PropManualEntry:   record.Checkbox(pc.IsManual()),
		PropTag:           record.Select(a.opts.DefaultTag),
		PropStatus:        record.MultiSelect(a.opts.DefaultStatus),
		PropPersona:       record.Select(Persona(pc.Need, pc.Authority, pc.Timing)),
		PropContractStart: record.Date(nil),
		PropPricingPlan:   record.Select(""),
		PropDiscount:      record.Number(nil),
	}, nil
}
