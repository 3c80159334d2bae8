package domain

import (
	"errors"
	"fmt"
)

// 錯誤分類 (Category)
// 呼叫端一律使用 errors.Is(err, ErrXxx) 判斷類別，基礎設施錯誤不會包裝這些類別
var (
	// ErrValidation 輸入格式錯誤、缺漏或超出範圍
	ErrValidation = errors.New("validation failed")

	// ErrNotFound 卡片、使用者或收款人不存在 (或已軟刪除)
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds 餘額不足
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConflict 業務衝突
	ErrConflict = errors.New("conflict")

	// ErrConsistency 內部一致性錯誤：重放餘額與儲存餘額不符，或轉帳兩端無法同時提交
	ErrConsistency = errors.New("consistency violation")
)

// 具體錯誤
var (
	// ErrAmountMustBePositive 金額必須為正數
	ErrAmountMustBePositive = newKindError("amount must be a number greater than zero", ErrValidation)

	// ErrInvalidAmount 金額格式錯誤 (NaN, Inf, 非數字)
	ErrInvalidAmount = newKindError("amount must be a finite decimal number", ErrValidation)

	// ErrAmountPrecision 小數位數超過帳本保存的精度
	ErrAmountPrecision = newKindError("amount must have at most 4 decimal places", ErrValidation)

	// ErrDescriptionRequired 描述不可為空
	ErrDescriptionRequired = newKindError("missing field 'description'", ErrValidation)

	// ErrSelfTransfer 不可轉帳給自己，同時屬於 Validation 與 Conflict
	ErrSelfTransfer = newKindError("cannot transfer to yourself", ErrValidation, ErrConflict)

	// ErrOperationIDReused 同一個分錄 ID 被用在內容不同的請求
	ErrOperationIDReused = newKindError("operation id already used by a different operation", ErrConflict)

	// ErrInsufficientBalance 餘額不足
	ErrInsufficientBalance = newKindError("balance is not enough for this operation", ErrInsufficientFunds)

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = newKindError("user does not exist", ErrNotFound)

	// ErrRecipientNotFound 找不到收款人
	ErrRecipientNotFound = newKindError("recipient does not exist", ErrNotFound)

	// ErrCardNotFound 找不到卡片 (不存在、不屬於此使用者或已刪除)
	ErrCardNotFound = newKindError("card does not exist", ErrNotFound)

	// ErrBalanceDrift 重放餘額與儲存餘額不一致
	ErrBalanceDrift = newKindError("replayed balance diverges from stored balance", ErrConsistency)

	// ErrUnknownOperationType 未知的交易類型
	ErrUnknownOperationType = newKindError("unknown operation type", ErrValidation)

	// ErrWALWriteFailed 寫入 WAL 失敗 (基礎設施錯誤，不屬於任何業務類別)
	ErrWALWriteFailed = errors.New("wal write failed")
)

// kindError 帶有一個或多個分類的錯誤
type kindError struct {
	msg   string
	kinds []error
}

func newKindError(msg string, kinds ...error) error {
	return &kindError{msg: msg, kinds: kinds}
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Unwrap() []error {
	return e.kinds
}

// FieldError 欄位層級的驗證錯誤
type FieldError struct {
	Field   string
	Message string
}

// NewFieldError 建立欄位驗證錯誤
func NewFieldError(field, format string, args ...any) *FieldError {
	return &FieldError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid field '%s': %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return ErrValidation
}

// ValidationErrors 一次回報多個欄位錯誤
type ValidationErrors []*FieldError

func (v ValidationErrors) Error() string {
	msg := ""
	for i, e := range v {
		if i > 0 {
			msg += " | "
		}
		msg += e.Error()
	}
	return msg
}

func (v ValidationErrors) Unwrap() []error {
	errs := make([]error, 0, len(v))
	for _, e := range v {
		errs = append(errs, e)
	}
	return errs
}

// OrNil 沒有錯誤時回傳 nil，避免 typed nil
func (v ValidationErrors) OrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// ConsistencyError 描述帳本漂移的細節
type ConsistencyError struct {
	UserID   int64
	Stored   string
	Replayed string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("user %d: stored balance %s, replayed balance %s: %v", e.UserID, e.Stored, e.Replayed, ErrBalanceDrift)
}

func (e *ConsistencyError) Unwrap() error {
	return ErrBalanceDrift
}
