package domain

import "github.com/shopspring/decimal"

// BalanceSummary 區間的期初與期末餘額
type BalanceSummary struct {
	StartBalance decimal.Decimal `json:"startBalance"`
	EndBalance   decimal.Decimal `json:"endBalance"`
}

// Fold 依帳本順序累加 ops 對 userID 的影響
// ops 必須已依 (createdAt, sequence) 排序
func Fold(ops []Operation, userID int64, start decimal.Decimal) decimal.Decimal {
	balance := start
	for i := range ops {
		balance = balance.Add(ops[i].SignedAmountFor(userID))
	}
	return balance
}
