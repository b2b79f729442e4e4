package model

import (
	"strings"
	"time"
)

// FundType 基金类型
type FundType string

const (
	FundTypeEquity FundType = "EQUITY"
	FundTypeDebt   FundType = "DEBT"
	FundTypeHybrid FundType = "HYBRID"
	FundTypeOther  FundType = "OTHER"
)

// MaxFundNotesLength 备注最大长度
const MaxFundNotesLength = 500

// Valid 是否为已知基金类型
func (t FundType) Valid() bool {
	switch t {
	case FundTypeEquity, FundTypeDebt, FundTypeHybrid, FundTypeOther:
		return true
	}
	return false
}

// SavedFund 用户收藏的基金
//
// (user_id, scheme_code) 唯一。
type SavedFund struct {
	ID         string    `json:"id" bson:"_id" db:"id"`
	UserID     string    `json:"userId" bson:"user_id" db:"user_id"`
	SchemeName string    `json:"schemeName" bson:"scheme_name" db:"scheme_name"`
	SchemeCode string    `json:"schemeCode" bson:"scheme_code" db:"scheme_code"`
	FundType   FundType  `json:"fundType" bson:"fund_type" db:"fund_type"`
	Category   string    `json:"category" bson:"category" db:"category"`
	AMC        string    `json:"amc" bson:"amc" db:"amc"`
	Notes      string    `json:"notes" bson:"notes" db:"notes"`
	CreatedAt  time.Time `json:"createdAt" bson:"created_at" db:"created_at"`
}

// Normalize 去除首尾空白并填充默认值
// AMC 为空时取基金名称的第一个单词
func (f *SavedFund) Normalize() {
	f.SchemeName = strings.TrimSpace(f.SchemeName)
	f.SchemeCode = strings.TrimSpace(f.SchemeCode)
	f.Category = strings.TrimSpace(f.Category)
	f.AMC = strings.TrimSpace(f.AMC)
	f.Notes = strings.TrimSpace(f.Notes)
	f.FundType = FundType(strings.ToUpper(strings.TrimSpace(string(f.FundType))))
	if f.FundType == "" {
		f.FundType = FundTypeOther
	}
	if f.AMC == "" && f.SchemeName != "" {
		f.AMC = strings.Fields(f.SchemeName)[0]
	}
}
