package domain

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Entry 附帶顯示資訊的分錄，Direction 相對於查詢者
type Entry struct {
	Operation
	Direction Direction    `json:"direction"`
	Owner     *Party       `json:"owner,omitempty"`
	Card      *CardSummary `json:"cardInfo,omitempty"`
	Recipient *Party       `json:"recipientInfo,omitempty"`
}

// Receipt 存款/提款/轉帳的回傳值
type Receipt struct {
	Entry Entry `json:"operation"`
	// Balance: 發起方的新餘額
	Balance decimal.Decimal `json:"updateBalance"`
	// Replayed: 去重命中，沒有新的變動
	Replayed bool `json:"replayed"`
}

// HistoryPage 一頁查詢結果
type HistoryPage struct {
	Docs          []Entry `json:"docs"`
	TotalDocs     int     `json:"totalDocs"`
	Limit         int     `json:"limit"`
	Page          int     `json:"page"`
	TotalPages    int     `json:"totalPages"`
	PagingCounter int     `json:"pagingCounter"`
	HasPrevPage   bool    `json:"hasPrevPage"`
	HasNextPage   bool    `json:"hasNextPage"`
	PrevPage      *int    `json:"prevPage"`
	NextPage      *int    `json:"nextPage"`
}

// Paginate 切出指定頁，pagination=false 時回傳全部
func Paginate(entries []Entry, p PageRequest) *HistoryPage {
	total := len(entries)
	if !p.Pagination {
		limit := total
		if limit == 0 {
			limit = 1
		}
		return &HistoryPage{
			Docs:          entries,
			TotalDocs:     total,
			Limit:         limit,
			Page:          1,
			TotalPages:    1,
			PagingCounter: 1,
		}
	}

	// page 與 limit 可能極大，所有乘加都先確認不會溢位
	totalPages := total / p.Limit
	if total%p.Limit != 0 || totalPages == 0 {
		totalPages++
	}
	docs := []Entry{}
	counter := math.MaxInt
	if p.Page-1 <= (math.MaxInt-1)/p.Limit {
		counter = (p.Page-1)*p.Limit + 1
	}
	if total > 0 && p.Page-1 <= (total-1)/p.Limit {
		start := (p.Page - 1) * p.Limit
		end := start + min(p.Limit, total-start)
		docs = entries[start:end]
	}
	page := &HistoryPage{
		Docs:          docs,
		TotalDocs:     total,
		Limit:         p.Limit,
		Page:          p.Page,
		TotalPages:    totalPages,
		PagingCounter: counter,
		HasPrevPage:   p.Page > 1,
		HasNextPage:   p.Page < totalPages,
	}
	if page.HasPrevPage {
		prev := p.Page - 1
		page.PrevPage = &prev
	}
	if page.HasNextPage {
		next := p.Page + 1
		page.NextPage = &next
	}
	return page
}

// SortEntries 依排序條件做穩定排序，最後以帳本順序決勝負
// 若條件包含 createdAt，決勝負時沿用它的方向
func SortEntries(entries []Entry, s Sort) {
	tieBreak := Ascending
	for _, k := range s {
		if k.Field == SortByCreatedAt {
			tieBreak = k.Order
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := &entries[i], &entries[j]
		for _, k := range s {
			c := compareEntries(a, b, k.Field)
			if c == 0 {
				continue
			}
			if k.Order == Descending {
				return c > 0
			}
			return c < 0
		}
		if tieBreak == Descending {
			return b.Operation.Before(&a.Operation)
		}
		return a.Operation.Before(&b.Operation)
	})
}

func compareEntries(a, b *Entry, field SortField) int {
	switch field {
	case SortByCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case SortByAmount:
		return a.Amount.Cmp(b.Amount)
	case SortByType:
		return strings.Compare(string(a.Type), string(b.Type))
	case SortByDescription:
		return strings.Compare(a.Description, b.Description)
	case SortByDirection:
		return strings.Compare(string(a.Direction), string(b.Direction))
	}
	return 0
}
