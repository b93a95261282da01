package assemble

// Destination property names. Every record carries all of them.
const (
	PropCompany       = "会社名"
	PropContactName   = "担当者氏名"
	PropDepartment    = "部署名"
	PropOfficialDept  = "正式部署名"
	PropPosition      = "役職名"
	PropIndustry      = "業種"
	PropPhone         = "電話番号"
	PropMobile        = "携帯番号"
	PropEmail         = "メール"
	PropPostalCode    = "郵便番号"
	PropPrefecture    = "都道府県"
	PropAddress       = "住所"
	PropLeadDate      = "リード獲得日"
	PropAssignee      = "担当"
	PropAssigneeUsers = "担当ユーザー"
	PropHearingMemo   = "ヒアリングメモ"
	PropVoiceRecorder = "ボイレコ貸し出し"
	PropProduct       = "製品"
	PropManualEntry   = "手入力"
	PropTag           = "タグ"
	PropStatus        = "ステータス"
	PropPersona       = "ペルソナ"
	PropContractStart = "契約開始日"
	PropPricingPlan   = "料金形態"
	PropDiscount      = "割引"
)

// PropertyNames lists every destination property.
var PropertyNames = []string{
	PropCompany, PropContactName, PropDepartment, PropOfficialDept, PropPosition,
	PropIndustry, PropPhone, PropMobile, PropEmail, PropPostalCode, PropPrefecture,
	PropAddress, PropLeadDate, PropAssignee, PropAssigneeUsers, PropHearingMemo,
	PropVoiceRecorder, PropProduct, PropManualEntry, PropTag, PropStatus,
	PropPersona, PropContractStart, PropPricingPlan, PropDiscount,
}
