package constants

// Card field names produced by extraction. They double as the JSON keys the
// vision model is asked to return.
const (
	FieldCompany      = "会社名"
	FieldIndustry     = "業種"
	FieldDepartment   = "部署"
	FieldRole         = "役職"
	FieldName         = "担当者氏名"
	FieldAddress      = "住所"
	FieldOfficialDept = "正式部署名"
	FieldRoleClass    = "役職区分"
	FieldPrefecture   = "住所の都道府県"
	FieldPhone        = "電話番号"
	FieldMobile       = "携帯番号"
	FieldEmail        = "Eメール"
	FieldPostalCode   = "郵便番号"
)

// CardFields lists every field the extraction prompt asks for, in prompt order.
var CardFields = []string{
	FieldCompany, FieldIndustry, FieldDepartment, FieldRole, FieldName, FieldAddress,
	FieldOfficialDept, FieldRoleClass, FieldPrefecture, FieldPhone, FieldMobile,
	FieldEmail, FieldPostalCode,
}

// InputMode selects how the contact fields of a submission are obtained.
type InputMode string

const (
	InputModeImage  InputMode = "image"
	InputModeManual InputMode = "manual"
)

// AssetRole is the staging sub-area an image belongs to.
type AssetRole string

const (
	RoleCard    AssetRole = "card"
	RoleHearing AssetRole = "hearing"
)
