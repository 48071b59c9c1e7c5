package audit

import (
	"context"
	"fmt"
)

// TimelineStore is the query surface the service needs.
type TimelineStore interface {
	TimelineWindow(ctx context.Context, arg TimelineWindowParams) ([]TimelineRow, error)
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}

// Service coordinates audit timeline reads.
type Service struct {
	repo TimelineStore
}

// NewService constructs the audit timeline service.
func NewService(repo TimelineStore) *Service {
	return &Service{repo: repo}
}

// Timeline fetches a page of audit rows for one guild.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	if filters.GuildID <= 0 {
		return Result{}, fmt.Errorf("audit: guild id required")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.TimelineWindow(ctx, TimelineWindowParams{
		GuildID:    filters.GuildID,
		FromAt:     OptionalTime(filters.From),
		ToAt:       OptionalTime(filters.To),
		Entity:     OptionalText(filters.Entity),
		Action:     OptionalText(filters.Action),
		OffsetRows: int32(offset),
		LimitRows:  int32(pageSize + 1),
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
