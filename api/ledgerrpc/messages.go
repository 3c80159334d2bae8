package ledgerrpc

// DepositRequest 存款 / 提款
type DepositRequest struct {
	RefID       string `json:"ref_id,omitempty"`
	UserID      int64  `json:"user_id"`
	CardID      int64  `json:"card_id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// WithdrawRequest 與存款相同
type WithdrawRequest = DepositRequest

// TransferRequest 轉帳
type TransferRequest struct {
	RefID       string `json:"ref_id,omitempty"`
	UserID      int64  `json:"user_id"`
	RecipientID int64  `json:"recipient_id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// Party 使用者顯示資訊
type Party struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// CardInfo 卡片顯示資訊
type CardInfo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	Deleted  bool   `json:"deleted"`
}

// Entry 分錄
type Entry struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Direction   string    `json:"direction"`
	Amount      string    `json:"amount"`
	Description string    `json:"description"`
	CreatedAt   string    `json:"created_at"`
	User        *Party    `json:"user,omitempty"`
	Card        *CardInfo `json:"card,omitempty"`
	Recipient   *Party    `json:"recipient,omitempty"`
}

// OperationReply 存款 / 提款 / 轉帳的回應
type OperationReply struct {
	Operation     Entry  `json:"operation"`
	UpdateBalance string `json:"update_balance"`
	Replayed      bool   `json:"replayed"`
}

type GetBalanceRequest struct {
	UserID int64 `json:"user_id"`
}

type GetBalanceReply struct {
	Balance string `json:"balance"`
}

// SortSpec 單一排序條件，Order 接受 1, -1, "asc", "desc"
type SortSpec struct {
	Field string `json:"field"`
	Order any    `json:"order"`
}

// HistoryRequest 歷史查詢，未給定的條件不篩選
type HistoryRequest struct {
	UserID      int64      `json:"user_id"`
	Types       []string   `json:"type,omitempty"`
	Recipients  []int64    `json:"recipient,omitempty"`
	Cards       []int64    `json:"card,omitempty"`
	Description string     `json:"description,omitempty"`
	AmountMin   string     `json:"amount_min,omitempty"`
	AmountMax   string     `json:"amount_max,omitempty"`
	Directions  []string   `json:"direction,omitempty"`
	StartDate   string     `json:"start_date,omitempty"`
	EndDate     string     `json:"end_date,omitempty"`
	Page        *int       `json:"page,omitempty"`
	Limit       *int       `json:"limit,omitempty"`
	Pagination  *bool      `json:"pagination,omitempty"`
	Sort        []SortSpec `json:"sort,omitempty"`
}

// HistoryReply 一頁查詢結果
type HistoryReply struct {
	Docs          []Entry `json:"docs"`
	TotalDocs     int     `json:"total_docs"`
	Limit         int     `json:"limit"`
	Page          int     `json:"page"`
	TotalPages    int     `json:"total_pages"`
	PagingCounter int     `json:"paging_counter"`
	HasPrevPage   bool    `json:"has_prev_page"`
	HasNextPage   bool    `json:"has_next_page"`
	PrevPage      *int    `json:"prev_page"`
	NextPage      *int    `json:"next_page"`
}

type BalanceReportRequest struct {
	UserID    int64  `json:"user_id"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type BalanceReportReply struct {
	StartBalance string `json:"start_balance"`
	EndBalance   string `json:"end_balance"`
}

type AuditRequest struct {
	UserID int64 `json:"user_id"`
}

type AuditReply struct {
	Stored     string `json:"stored"`
	Replayed   string `json:"replayed"`
	Operations int    `json:"operations"`
	Consistent bool   `json:"consistent"`
}
