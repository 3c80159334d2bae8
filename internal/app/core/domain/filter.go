package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// 分頁預設值
const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// SortOrder 排序方向
type SortOrder int

const (
	Ascending  SortOrder = 1
	Descending SortOrder = -1
)

// ParseSortOrder 接受 1, -1, "asc", "desc"
// JSON 數字會被解成 float64，所以也一併接受
func ParseSortOrder(v any) (SortOrder, error) {
	switch x := v.(type) {
	case int:
		return sortOrderFromInt(int64(x))
	case int32:
		return sortOrderFromInt(int64(x))
	case int64:
		return sortOrderFromInt(x)
	case float64:
		if x != math.Trunc(x) {
			break
		}
		return sortOrderFromInt(int64(x))
	case SortOrder:
		return sortOrderFromInt(int64(x))
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "asc":
			return Ascending, nil
		case "desc":
			return Descending, nil
		}
	}
	return 0, NewFieldError("sort", "invalid value %v, valid values are 1 | -1 | asc | desc", v)
}

func sortOrderFromInt(n int64) (SortOrder, error) {
	switch n {
	case 1:
		return Ascending, nil
	case -1:
		return Descending, nil
	}
	return 0, NewFieldError("sort", "invalid value %d, valid values are 1 | -1 | asc | desc", n)
}

// SortField 可排序的欄位
type SortField string

const (
	SortByCreatedAt   SortField = "createdAt"
	SortByAmount      SortField = "amount"
	SortByType        SortField = "type"
	SortByDescription SortField = "description"
	SortByDirection   SortField = "direction"
)

func (f SortField) valid() bool {
	switch f {
	case SortByCreatedAt, SortByAmount, SortByType, SortByDescription, SortByDirection:
		return true
	}
	return false
}

// SortKey 單一排序條件
type SortKey struct {
	Field SortField
	Order SortOrder
}

// Sort 依序套用的排序條件
type Sort []SortKey

// DefaultSort createdAt 由新到舊
func DefaultSort() Sort {
	return Sort{{Field: SortByCreatedAt, Order: Descending}}
}

// Validate 至少一個 key，欄位與方向都必須合法
func (s Sort) Validate() error {
	if len(s) == 0 {
		return NewFieldError("sort", "must have at least one key")
	}
	seen := make(map[SortField]bool, len(s))
	for _, k := range s {
		if !k.Field.valid() {
			return NewFieldError("sort", "unknown field '%s'", k.Field)
		}
		if seen[k.Field] {
			return NewFieldError("sort", "duplicate field '%s'", k.Field)
		}
		seen[k.Field] = true
		if k.Order != Ascending && k.Order != Descending {
			return NewFieldError("sort", "invalid order %d for '%s'", k.Order, k.Field)
		}
	}
	return nil
}

// PageRequest 分頁參數
// Pagination=false 代表全部回傳，但仍回報總數
type PageRequest struct {
	Page       int
	Limit      int
	Pagination bool
}

// DefaultPageRequest page=1, limit=10, pagination=true
func DefaultPageRequest() PageRequest {
	return PageRequest{Page: DefaultPage, Limit: DefaultLimit, Pagination: true}
}

// Validate page >= 1, limit >= 1
func (p PageRequest) Validate() error {
	var errs ValidationErrors
	if p.Page < 1 {
		errs = append(errs, NewFieldError("page", "must be a number greater than zero"))
	}
	if p.Limit < 1 {
		errs = append(errs, NewFieldError("limit", "must be a number greater than zero"))
	}
	return errs.OrNil()
}

// DateWindow 以日為邊界的閉區間 [Start, End]
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// Contains t 是否落在區間內 (含邊界)
func (w DateWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Epoch startDate 的預設值
var Epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// StartOfDay 當日 00:00:00
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay 當日 23:59:59.999999999
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// NewDayWindow 依 startDate/endDate 建立日區間
// 未給定時 start 預設為 epoch，end 預設為 now
func NewDayWindow(start, end *time.Time, now time.Time, loc *time.Location) (DateWindow, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := Epoch
	if start != nil {
		s = *start
	}
	e := now
	if end != nil {
		e = *end
	}
	w := DateWindow{Start: StartOfDay(s, loc), End: EndOfDay(e, loc)}
	if w.End.Before(w.Start) {
		return DateWindow{}, NewFieldError("endDate", "must not be before 'startDate'")
	}
	return w, nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseDate 解析日期字串，空字串回傳 nil
// 不帶時區的字串視為 loc 的當地時間，loc 為 nil 時使用 UTC
func ParseDate(field, s string, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t, nil
		}
	}
	return nil, NewFieldError(field, "invalid date %q", s)
}

// HistoryFilter 歷史查詢的條件，各條件之間為 AND
// 空集合 / nil 代表不篩選
type HistoryFilter struct {
	Types       []OperationType
	Recipients  []int64
	Cards       []int64
	Description string
	AmountMin   decimal.NullDecimal
	AmountMax   decimal.NullDecimal
	Directions  []Direction
	StartDate   *time.Time
	EndDate     *time.Time
	Page        PageRequest
	Sort        Sort
}

// NewHistoryFilter 帶預設分頁與排序的空條件
func NewHistoryFilter() HistoryFilter {
	return HistoryFilter{
		Page: DefaultPageRequest(),
		Sort: DefaultSort(),
	}
}

// Validate 逐一檢查每個條件，彙整所有錯誤
// 日期的先後檢查交由 NewDayWindow
func (f *HistoryFilter) Validate() error {
	var errs ValidationErrors
	for _, t := range f.Types {
		if !t.Valid() {
			errs = append(errs, NewFieldError("type", "unknown operation type '%s'", t))
			break
		}
	}
	for _, d := range f.Directions {
		if _, ok := ParseDirection(string(d)); !ok {
			errs = append(errs, NewFieldError("direction", "unknown direction '%s'", d))
			break
		}
	}
	for _, id := range f.Recipients {
		if id <= 0 {
			errs = append(errs, NewFieldError("recipient", "invalid id %d", id))
			break
		}
	}
	for _, id := range f.Cards {
		if id <= 0 {
			errs = append(errs, NewFieldError("card", "invalid id %d", id))
			break
		}
	}
	if f.AmountMin.Valid && f.AmountMin.Decimal.IsNegative() {
		errs = append(errs, NewFieldError("amountMin", "must not be negative"))
	}
	if f.AmountMax.Valid && f.AmountMax.Decimal.IsNegative() {
		errs = append(errs, NewFieldError("amountMax", "must not be negative"))
	}
	if f.AmountMin.Valid && f.AmountMax.Valid && f.AmountMin.Decimal.GreaterThan(f.AmountMax.Decimal) {
		errs = append(errs, NewFieldError("amountMax", "must be greater than or equal to 'amountMin'"))
	}
	if err := f.Page.Validate(); err != nil {
		errs = append(errs, err.(ValidationErrors)...)
	}
	if err := f.Sort.Validate(); err != nil {
		errs = append(errs, err.(*FieldError))
	}
	return errs.OrNil()
}

// WantsDirection 方向條件是否接受 d
func (f *HistoryFilter) WantsDirection(d Direction) bool {
	if len(f.Directions) == 0 {
		return true
	}
	for _, want := range f.Directions {
		if want == d {
			return true
		}
	}
	return false
}

// Query 轉換成儲存層可以執行的查詢 (不含方向，方向是衍生欄位)
func (f *HistoryFilter) Query(userID int64, w DateWindow) OperationQuery {
	return OperationQuery{
		UserID:      userID,
		From:        w.Start,
		To:          w.End,
		Types:       f.Types,
		Recipients:  f.Recipients,
		Cards:       f.Cards,
		Description: strings.TrimSpace(f.Description),
		AmountMin:   f.AmountMin,
		AmountMax:   f.AmountMax,
	}
}

// OperationQuery 儲存層查詢條件
// 只回傳 UserID 為發起方或收款方的分錄，結果依帳本順序 (createdAt, sequence) 遞增
type OperationQuery struct {
	UserID int64
	// From/To: createdAt 閉區間，零值代表不限制
	From time.Time
	To   time.Time
	// Before: createdAt < Before，零值代表不限制
	Before      time.Time
	Types       []OperationType
	Recipients  []int64
	Cards       []int64
	Description string
	AmountMin   decimal.NullDecimal
	AmountMax   decimal.NullDecimal
}

// Match 給記憶體實作使用的比對函式
func (q *OperationQuery) Match(o *Operation) bool {
	if !o.Touches(q.UserID) {
		return false
	}
	if !q.From.IsZero() && o.CreatedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && o.CreatedAt.After(q.To) {
		return false
	}
	if !q.Before.IsZero() && !o.CreatedAt.Before(q.Before) {
		return false
	}
	if len(q.Types) > 0 && !contains(q.Types, o.Type) {
		return false
	}
	if len(q.Recipients) > 0 && (o.RecipientID == 0 || !contains(q.Recipients, o.RecipientID)) {
		return false
	}
	if len(q.Cards) > 0 && (o.CardID == 0 || !contains(q.Cards, o.CardID)) {
		return false
	}
	if q.Description != "" && !strings.Contains(strings.ToLower(o.Description), strings.ToLower(q.Description)) {
		return false
	}
	if q.AmountMin.Valid && o.Amount.LessThan(q.AmountMin.Decimal) {
		return false
	}
	if q.AmountMax.Valid && o.Amount.GreaterThan(q.AmountMax.Decimal) {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// String 方便 log
func (q OperationQuery) String() string {
	return fmt.Sprintf("user=%d from=%s to=%s before=%s", q.UserID, q.From.Format(time.RFC3339), q.To.Format(time.RFC3339), q.Before.Format(time.RFC3339))
}
