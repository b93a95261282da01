package constants

import (
	"strings"

	"golang.org/x/text/width"
)

// Industry is one entry of the closed industry vocabulary (JSIC middle classes).
type Industry string

// Department is one entry of the closed department vocabulary.
type Department string

// Role is one entry of the closed role vocabulary.
type Role string

var industries = []Industry{
	"01農業", "02林業", "03漁業", "04水産養殖業", "05鉱業・採石業・砂利採取業", "06総合工事業", "07職別工事業", "08設備工事業", "09食料品製造業", "10飲料・たばこ・飼料製造業",
	"11繊維工業", "12木材・木製品製造業", "13家具・装備品製造業", "14パルプ・紙・紙加工品製造業", "15印刷・同関連業", "16化学工業", "17石油製品・石炭製品製造業", "18プラスチック製品製造業", "19ゴム製品製造業", "20なめし革・同製品・毛皮製造業",
	"21窯業・土石製品製造業", "22鉄鋼業", "23非鉄金属製造業", "24金属製品製造業", "25はん用機械器具製造業", "26生産用機械器具製造業", "27業務用機械器具製造業", "28電子部品・回路・デバイス製造業", "29電気機械器具製造業", "30情報通信機械器具製造業",
	"31輸送用機械器具製造業", "32その他の製造業", "33電気業", "34ガス業", "35熱供給業", "36水道業", "37通信業", "38放送業", "39情報サービス業", "40インターネット附随サービス業",
	"41映像・音声・文字情報制作業", "42鉄道業", "43道路旅客運送業", "44道路貨物運送業", "45水運業", "46航空運輸業", "47倉庫業", "48運輸に附帯するサービス業", "49郵便業", "50各種商品卸売業",
	"51繊維・衣服等卸売業", "52飲食料品卸売業", "53建築材料・鉱物・金属材料卸売業", "54機械器具卸売業", "55その他の卸売業", "56各種商品小売業", "57織物・衣服・身の回り品小売業", "58飲食料品小売業", "59機械器具小売業", "60その他の小売業",
	"61無店舗小売業", "62銀行業", "63協同組織金融業", "64貸金業・クレジットカード業", "65金融商品取引・商品先物取引業", "66補助的金融業等", "67保険業", "68不動産取引業", "69不動産賃貸業・管理業", "70物品賃貸業",
	"71学術・開発研究機関", "72専門サービス業", "73広告業", "75宿泊業", "76飲食店", "77持ち帰り・配達飲食サービス業", "78洗濯・理容・美容・浴場業", "79その他の生活関連サービス業", "80娯楽業",
	"81学校教育", "82その他の教育・学習支援業", "83医療業", "84保健衛生", "85社会保険・社会福祉・介護事業", "86郵便局", "87協同組合", "88廃棄物処理業", "89自動車整備業",
	"90機械等修理業", "91職業紹介・労働者派遣業", "92その他の事業サービス業", "93政治・経済・文化団体", "94宗教", "95その他のサービス業", "97国家公務", "98地方公務",
}

var departments = []Department{
	"CS部", "ITソルーション部", "コーポレート本部", "なし", "マーケティング部", "営業部", "企画開発部", "技術部", "経営企画部",
	"経営管理部", "経理部", "人事部", "総務部", "品質管理部", "法務部", "業務部", "その他",
}

var roles = []Role{
	"部長", "本部長", "事務部長", "不明", "一般社員", "課長", "シニアエキスパート", "役員・理事", "代表取締役",
	"係長(リーダー・班長)", "マネージャ", "副部長", "フリーランス", "係長", "課長代理", "主任",
}

// Industries returns the industry vocabulary in prompt order.
func Industries() []string { return asStrings(industries) }

// Departments returns the department vocabulary in prompt order.
func Departments() []string { return asStrings(departments) }

// Roles returns the role vocabulary in prompt order.
func Roles() []string { return asStrings(roles) }

func asStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

// CanonicalIndustry maps a model answer onto the vocabulary. It accepts the exact
// label, the label without its two-digit code, and width variants of either.
func CanonicalIndustry(input string) (Industry, bool) {
	normalized := strings.TrimSpace(width.Fold.String(input))
	if normalized == "" {
		return "", false
	}
	for _, ind := range industries {
		label := string(ind)
		if normalized == label || normalized == label[2:] {
			return ind, true
		}
	}
	return "", false
}
