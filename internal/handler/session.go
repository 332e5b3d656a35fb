package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-session/internal/model"
	"github.com/iliyamo/table-session/internal/service"
)

// Checkin is the check-in side of the coordinator.
type Checkin interface {
	JoinTable(ctx context.Context, req service.JoinRequest) (*service.JoinResult, error)
	RenameParticipant(ctx context.Context, participantID uint64, newName string) (*model.Participant, error)
	ListParticipants(ctx context.Context, sessionID uint64) ([]model.Participant, error)
	GetTable(ctx context.Context, tableID uint64) (*service.TableStatus, error)
}

// GroupOrders is the departure and group order side of the coordinator.
type GroupOrders interface {
	LeaveSession(ctx context.Context, participantID uint64) (bool, error)
	TransferOrder(ctx context.Context, orderID, fromParticipantID, toParticipantID uint64) (*model.Order, error)
	GroupOrderSummary(ctx context.Context, sessionID uint64) (*service.Summary, error)
}

// SessionHandler exposes table check-in and group ordering over HTTP.
// Identity is optional; a diner without a token joins as a guest.
type SessionHandler struct {
	Checkin Checkin
	Orders  GroupOrders
}

// NewSessionHandler panics if either dependency is nil.
func NewSessionHandler(checkin Checkin, orders GroupOrders) *SessionHandler {
	if checkin == nil || orders == nil {
		panic("nil coordinator passed to NewSessionHandler")
	}
	return &SessionHandler{Checkin: checkin, Orders: orders}
}

type joinRequest struct {
	FantasyName string `json:"fantasy_name"`
}

type renameRequest struct {
	FantasyName *string `json:"fantasy_name"`
}

type transferRequest struct {
	FromParticipantID uint64 `json:"from_participant_id"`
	ToParticipantID   uint64 `json:"to_participant_id"`
}

// orderView is an order with decimal amounts alongside the cents.
type orderView struct {
	ID               uint64          `json:"id"`
	SessionID        uint64          `json:"session_id"`
	ParticipantID    uint64          `json:"participant_id"`
	Status           string          `json:"status"`
	TotalAmount      string          `json:"total_amount"`
	TotalAmountCents int64           `json:"total_amount_cents"`
	Items            []orderItemView `json:"items"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type orderItemView struct {
	ID             uint64 `json:"id"`
	MenuItemID     uint64 `json:"menu_item_id"`
	Name           string `json:"name"`
	Quantity       uint32 `json:"quantity"`
	UnitPrice      string `json:"unit_price"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type participantTotal struct {
	ID          uint64    `json:"id"`
	FantasyName string    `json:"fantasy_name"`
	JoinedAt    time.Time `json:"joined_at"`
	Total       string    `json:"total"`
	TotalCents  int64     `json:"total_cents"`
}

type summaryView struct {
	SessionID        uint64             `json:"session_id"`
	TableID          uint64             `json:"table_id"`
	TableNumber      uint32             `json:"table_number"`
	IsActive         bool               `json:"is_active"`
	Participants     []participantTotal `json:"participants"`
	Orders           []orderView        `json:"orders"`
	TotalAmount      string             `json:"total_amount"`
	TotalAmountCents int64              `json:"total_amount_cents"`
	// Totals of diners who already left, keyed by participant ID.
	FormerParticipants map[uint64]string `json:"former_participants,omitempty"`
}

func newOrderView(o model.Order) orderView {
	v := orderView{
		ID:               o.ID,
		SessionID:        o.SessionID,
		ParticipantID:    o.ParticipantID,
		Status:           o.Status,
		TotalAmount:      formatCents(o.TotalAmountCents),
		TotalAmountCents: o.TotalAmountCents,
		Items:            make([]orderItemView, 0, len(o.Items)),
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, orderItemView{
			ID:             it.ID,
			MenuItemID:     it.MenuItemID,
			Name:           it.Name,
			Quantity:       it.Quantity,
			UnitPrice:      formatCents(it.UnitPriceCents),
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	return v
}

func newSummaryView(s *service.Summary) summaryView {
	v := summaryView{
		SessionID:        s.SessionID,
		TableID:          s.TableID,
		TableNumber:      s.TableNumber,
		IsActive:         s.IsActive,
		Participants:     make([]participantTotal, 0, len(s.Participants)),
		Orders:           make([]orderView, 0, len(s.Orders)),
		TotalAmount:      formatCents(s.TotalAmountCents),
		TotalAmountCents: s.TotalAmountCents,
	}
	present := make(map[uint64]bool, len(s.Participants))
	for _, p := range s.Participants {
		present[p.ID] = true
		cents := s.IndividualTotals[p.ID]
		v.Participants = append(v.Participants, participantTotal{
			ID:          p.ID,
			FantasyName: p.FantasyName,
			JoinedAt:    p.JoinedAt,
			Total:       formatCents(cents),
			TotalCents:  cents,
		})
	}
	for id, cents := range s.IndividualTotals {
		if present[id] {
			continue
		}
		if v.FormerParticipants == nil {
			v.FormerParticipants = make(map[uint64]string)
		}
		v.FormerParticipants[id] = formatCents(cents)
	}
	for _, o := range s.Orders {
		v.Orders = append(v.Orders, newOrderView(o))
	}
	return v
}

// GetTable handles GET /v1/tables/:id.  It returns the table, its active
// session if any and the number of free seats.
func (h *SessionHandler) GetTable(c echo.Context) error {
	tableID, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid table id")
	}
	status, err := h.Checkin.GetTable(c.Request().Context(), tableID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// JoinTable handles POST /v1/tables/:id/join.  The body is optional; a
// missing fantasy_name gets a generated one.  Authenticated diners are
// recorded with their user ID so they cannot join twice.
func (h *SessionHandler) JoinTable(c echo.Context) error {
	tableID, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid table id")
	}
	var req joinRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	res, err := h.Checkin.JoinTable(c.Request().Context(), service.JoinRequest{
		TableID:     tableID,
		UserID:      getUserID(c),
		FantasyName: req.FantasyName,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// ListParticipants handles GET /v1/sessions/:id/participants.
func (h *SessionHandler) ListParticipants(c echo.Context) error {
	sessionID, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid session id")
	}
	participants, err := h.Checkin.ListParticipants(c.Request().Context(), sessionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session_id": sessionID, "participants": participants})
}

// Summary handles GET /v1/sessions/:id/summary.
func (h *SessionHandler) Summary(c echo.Context) error {
	sessionID, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid session id")
	}
	sum, err := h.Orders.GroupOrderSummary(c.Request().Context(), sessionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newSummaryView(sum))
}

// RenameParticipant handles PATCH /v1/participants/:id.
func (h *SessionHandler) RenameParticipant(c echo.Context) error {
	participantID, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid participant id")
	}
	var req renameRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.FantasyName == nil {
		return badRequest(c, "fantasy_name is required")
	}
	p, err := h.Checkin.RenameParticipant(c.Request().Context(), participantID, *req.FantasyName)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// LeaveSession handles DELETE /v1/participants/:id.  Leaving twice is
// not an error; the second call reports left=false.
func (h *SessionHandler) LeaveSession(c echo.Context) error {
	participantID, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid participant id")
	}
	left, err := h.Orders.LeaveSession(c.Request().Context(), participantID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"left": left})
}

// TransferOrder handles POST /v1/orders/:id/transfer.
func (h *SessionHandler) TransferOrder(c echo.Context) error {
	orderID, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid order id")
	}
	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.FromParticipantID == 0 || req.ToParticipantID == 0 {
		return badRequest(c, "from_participant_id and to_participant_id are required")
	}
	o, err := h.Orders.TransferOrder(c.Request().Context(), orderID, req.FromParticipantID, req.ToParticipantID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newOrderView(*o))
}
