package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/guildhall/guildhall/internal/perms"
	"github.com/guildhall/guildhall/internal/platform/httpx"
)

// Handler exposes the audit timeline read endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type timelineRowDTO struct {
	At       time.Time      `json:"at"`
	ActorID  int64          `json:"actorId"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entityId"`
	Meta     map[string]any `json:"meta,omitempty"`
}

type timelineResponse struct {
	Rows     []timelineRowDTO `json:"rows"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
	HasNext  bool             `json:"hasNext"`
}

// Timeline handles GET /guilds/{guildID}/audit. The route is gated on the
// view-audit-log permission by the router.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	guildID, err := perms.GuildIDFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "guild not found", "")
		return
	}
	q := r.URL.Query()
	filters := TimelineFilters{
		GuildID: guildID,
		Entity:  q.Get("entity"),
		Action:  q.Get("action"),
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("pageSize"))
	if from := q.Get("from"); from != "" {
		filters.From, _ = time.Parse(time.RFC3339, from)
	}
	if to := q.Get("to"); to != "" {
		filters.To, _ = time.Parse(time.RFC3339, to)
	}

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "audit timeline failed", "")
		return
	}
	resp := timelineResponse{
		Rows:     make([]timelineRowDTO, 0, len(result.Rows)),
		Page:     result.Paging.Page,
		PageSize: result.Paging.PageSize,
		HasNext:  result.Paging.HasNext,
	}
	for _, row := range result.Rows {
		resp.Rows = append(resp.Rows, timelineRowDTO{
			At:       row.At,
			ActorID:  row.ActorID,
			Action:   row.Action,
			Entity:   row.Entity,
			EntityID: row.EntityID,
			Meta:     row.Meta,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}
