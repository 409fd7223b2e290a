package orders

import (
	"context"
	"time"

	"github.com/orderdesk/orderdesk/internal/ledger"
	"github.com/orderdesk/orderdesk/internal/shared"
)

// QueryService answers order listings for the dashboard. Search text
// overrides the date range but never the status filter; results come back
// newest first.
type QueryService struct {
	repo RepositoryPort
}

// NewQueryService builds a QueryService.
func NewQueryService(repo RepositoryPort) *QueryService {
	return &QueryService{repo: repo}
}

// List resolves the raw query into repository filters and runs it.
func (s *QueryService) List(ctx context.Context, actor shared.Actor, q ListOrdersQuery) ([]Summary, shared.Pagination, error) {
	f := Filters{
		Search:  q.Search,
		Page:    q.Page,
		PerPage: q.PerPage,
	}

	if q.Status != "" {
		status := ledger.PaymentStatus(q.Status)
		switch status {
		case ledger.StatusUnpaid, ledger.StatusPartiallyPaid, ledger.StatusPaid, ledger.StatusCancelled:
			f.Status = status
		default:
			return nil, shared.Pagination{}, shared.Validationf("unknown status %q", q.Status)
		}
	}

	if q.From != "" {
		from, err := time.Parse("2006-01-02", q.From)
		if err != nil {
			return nil, shared.Pagination{}, shared.Validationf("invalid from date %q", q.From)
		}
		f.From = from
	}
	if q.To != "" {
		to, err := time.Parse("2006-01-02", q.To)
		if err != nil {
			return nil, shared.Pagination{}, shared.Validationf("invalid to date %q", q.To)
		}
		// The range is inclusive of the end date.
		f.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, shared.Pagination{}, shared.Validationf("date range ends before it starts")
	}

	summaries, total, err := s.repo.List(ctx, actor.OrgID, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return summaries, shared.NewPagination(q.Page, q.PerPage, total), nil
}
