package grpc

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-wallet-ledger/api/ledgerrpc"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

func parseRefID(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, domain.NewFieldError("ref_id", "%v", err)
	}
	return id, nil
}

func parseAmount(field, s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, domain.NewFieldError(field, "invalid number %q", s)
	}
	return decimal.NewNullDecimal(d), nil
}

// toHistoryFilter 把請求轉成型別化的條件，每個欄位獨立驗證
func toHistoryFilter(req *ledgerrpc.HistoryRequest, loc *time.Location) (domain.HistoryFilter, error) {
	f := domain.NewHistoryFilter()
	var errs domain.ValidationErrors

	for _, s := range req.Types {
		t, err := domain.ParseOperationType(s)
		if err != nil {
			errs = append(errs, domain.NewFieldError("type", "unknown operation type %q", s))
			continue
		}
		f.Types = append(f.Types, t)
	}
	for _, s := range req.Directions {
		d, ok := domain.ParseDirection(s)
		if !ok {
			errs = append(errs, domain.NewFieldError("direction", "unknown direction %q", s))
			continue
		}
		f.Directions = append(f.Directions, d)
	}
	f.Recipients = req.Recipients
	f.Cards = req.Cards
	f.Description = req.Description

	var err error
	if f.AmountMin, err = parseAmount("amountMin", req.AmountMin); err != nil {
		errs = append(errs, err.(*domain.FieldError))
	}
	if f.AmountMax, err = parseAmount("amountMax", req.AmountMax); err != nil {
		errs = append(errs, err.(*domain.FieldError))
	}
	if f.StartDate, err = domain.ParseDate("startDate", req.StartDate, loc); err != nil {
		errs = append(errs, err.(*domain.FieldError))
	}
	if f.EndDate, err = domain.ParseDate("endDate", req.EndDate, loc); err != nil {
		errs = append(errs, err.(*domain.FieldError))
	}

	if req.Page != nil {
		f.Page.Page = *req.Page
	}
	if req.Limit != nil {
		f.Page.Limit = *req.Limit
	}
	if req.Pagination != nil {
		f.Page.Pagination = *req.Pagination
	}
	if req.Sort != nil {
		f.Sort = make(domain.Sort, 0, len(req.Sort))
		for _, key := range req.Sort {
			order, err := domain.ParseSortOrder(key.Order)
			if err != nil {
				errs = append(errs, err.(*domain.FieldError))
				continue
			}
			f.Sort = append(f.Sort, domain.SortKey{Field: domain.SortField(key.Field), Order: order})
		}
	}
	return f, errs.OrNil()
}

func toEntry(e *domain.Entry) ledgerrpc.Entry {
	out := ledgerrpc.Entry{
		ID:          e.ID.String(),
		Type:        string(e.Type),
		Direction:   string(e.Direction),
		Amount:      e.Amount.String(),
		Description: e.Description,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if e.Owner != nil {
		out.User = toParty(e.Owner)
	}
	if e.Recipient != nil {
		out.Recipient = toParty(e.Recipient)
	}
	if e.Card != nil {
		out.Card = &ledgerrpc.CardInfo{
			ID:       e.Card.ID,
			Name:     e.Card.Name,
			Brand:    e.Card.Brand,
			Last4:    e.Card.Last4,
			ExpMonth: e.Card.ExpMonth,
			ExpYear:  e.Card.ExpYear,
			Deleted:  e.Card.Deleted,
		}
	}
	return out
}

func toParty(p *domain.Party) *ledgerrpc.Party {
	return &ledgerrpc.Party{ID: p.ID, FirstName: p.FirstName, LastName: p.LastName}
}

func toOperationReply(r *domain.Receipt) *ledgerrpc.OperationReply {
	return &ledgerrpc.OperationReply{
		Operation:     toEntry(&r.Entry),
		UpdateBalance: r.Balance.String(),
		Replayed:      r.Replayed,
	}
}

func toHistoryReply(p *domain.HistoryPage) *ledgerrpc.HistoryReply {
	docs := make([]ledgerrpc.Entry, len(p.Docs))
	for i := range p.Docs {
		docs[i] = toEntry(&p.Docs[i])
	}
	return &ledgerrpc.HistoryReply{
		Docs:          docs,
		TotalDocs:     p.TotalDocs,
		Limit:         p.Limit,
		Page:          p.Page,
		TotalPages:    p.TotalPages,
		PagingCounter: p.PagingCounter,
		HasPrevPage:   p.HasPrevPage,
		HasNextPage:   p.HasNextPage,
		PrevPage:      p.PrevPage,
		NextPage:      p.NextPage,
	}
}
