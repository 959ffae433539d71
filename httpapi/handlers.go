package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"orderflow/auth"
	"orderflow/bid"
	"orderflow/chat"
	"orderflow/fault"
	"orderflow/order"
	"orderflow/revenue"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}

// writeError maps the fault taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch fault.KindOf(err) {
	case fault.KindValidation:
		status = http.StatusBadRequest
	case fault.KindInvalidTransition:
		status = http.StatusConflict
	case fault.KindUnauthorized:
		status = http.StatusForbidden
	case fault.KindNotFound:
		status = http.StatusNotFound
	case fault.KindReconciliation:
		status = http.StatusConflict
	default:
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			status = http.StatusUnauthorized
		case errors.Is(err, auth.ErrWeakPassword):
			status = http.StatusBadRequest
		case errors.Is(err, order.ErrNotFound), errors.Is(err, bid.ErrNotFound), errors.Is(err, auth.ErrUserNotFound):
			status = http.StatusNotFound
		}
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
		http.Error(w, http.StatusText(status), status)
		return
	}

	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func actorOr401(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return actor, ok
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	KYCVerified bool   `json:"kycVerified"`
	CreatedAt   string `json:"createdAt"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Role:        string(u.Role),
		KYCVerified: u.KYCVerified,
		CreatedAt:   u.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user":  toUserResponse(result.User),
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	users, err := s.authService.ListUsers(r.Context(), actor)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleVerifyKYC(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	user, err := s.authService.VerifyKYC(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	if err := s.authService.DeleteUser(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type orderResponse struct {
	ID                 string   `json:"id"`
	BrokerID           string   `json:"brokerId"`
	ContractorEmail    string   `json:"contractorEmail"`
	Description        string   `json:"description"`
	Status             string   `json:"status"`
	ContractorID       *string  `json:"contractorId,omitempty"`
	AdminID            *string  `json:"adminId,omitempty"`
	FundedBy           *string  `json:"fundedBy,omitempty"`
	FundedAmount       *float64 `json:"fundedAmount,omitempty"`
	RevenueDistributed bool     `json:"revenueDistributed"`
	CreatedAt          string   `json:"createdAt"`
	ApprovedAt         *string  `json:"approvedAt,omitempty"`
	DeliveredAt        *string  `json:"deliveredAt,omitempty"`
}

func toOrderResponse(o order.Order) orderResponse {
	resp := orderResponse{
		ID:                 o.ID,
		BrokerID:           o.BrokerID,
		ContractorEmail:    o.ContractorEmail,
		Description:        o.Description,
		Status:             string(o.Status),
		ContractorID:       o.ContractorID,
		AdminID:            o.AdminID,
		FundedBy:           o.FundedBy,
		FundedAmount:       o.FundedAmount,
		RevenueDistributed: o.RevenueDistributed,
		CreatedAt:          o.CreatedAt.Format(time.RFC3339),
	}
	if o.ApprovedAt != nil {
		v := o.ApprovedAt.Format(time.RFC3339)
		resp.ApprovedAt = &v
	}
	if o.DeliveredAt != nil {
		v := o.DeliveredAt.Format(time.RFC3339)
		resp.DeliveredAt = &v
	}
	return resp
}

func toOrderResponses(orders []order.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	var req struct {
		ContractorEmail string `json:"contractorEmail"`
		Description     string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	created, err := s.orderService.Create(r.Context(), actor, order.CreateParams{
		ContractorEmail: req.ContractorEmail,
		Description:     req.Description,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toOrderResponse(created))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	if status := r.URL.Query().Get("status"); status != "" {
		orders, err := s.orderService.ListByStatus(r.Context(), order.Status(status))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, toOrderResponses(orders))
		return
	}

	orders, err := s.orderService.ListAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.orderService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	var req struct {
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	updated, err := s.transitions.Transition(r.Context(), actor, chi.URLParam(r, "id"), order.Status(req.Target))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	updated, err := s.deliveryService.Allocate(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	delivered, rec, err := s.deliveryService.ConfirmDelivery(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"order":   toOrderResponse(delivered),
		"revenue": toRevenueResponse(rec),
	})
}

type bidResponse struct {
	ID         string  `json:"id"`
	OrderID    string  `json:"orderId"`
	InvestorID string  `json:"investorId"`
	Amount     float64 `json:"amount"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"createdAt"`
}

func toBidResponse(b bid.Bid) bidResponse {
	return bidResponse{
		ID:         b.ID,
		OrderID:    b.OrderID,
		InvestorID: b.InvestorID,
		Amount:     b.Amount,
		Status:     string(b.Status),
		CreatedAt:  b.CreatedAt.Format(time.RFC3339),
	}
}

func toBidResponses(bids []bid.Bid) []bidResponse {
	out := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, toBidResponse(b))
	}
	return out
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	placed, err := s.bidService.Place(r.Context(), actor, chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toBidResponse(placed))
}

func (s *Server) handleListOrderBids(w http.ResponseWriter, r *http.Request) {
	bids, err := s.bidService.ListByOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toBidResponses(bids))
}

func (s *Server) handleListPendingBids(w http.ResponseWriter, r *http.Request) {
	bids, err := s.bidService.ListPending(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toBidResponses(bids))
}

func (s *Server) handleSelectBid(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	won, funded, err := s.bidService.SelectWinner(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"bid":   toBidResponse(won),
		"order": toOrderResponse(funded),
	})
}

type revenueResponse struct {
	ID              string  `json:"id"`
	OrderID         string  `json:"orderId"`
	ContractorShare float64 `json:"contractorShare"`
	BrokerShare     float64 `json:"brokerShare"`
	InvestorShare   float64 `json:"investorShare"`
	AdminShare      float64 `json:"adminShare"`
	CreatedAt       string  `json:"createdAt"`
}

func toRevenueResponse(rec revenue.Record) revenueResponse {
	return revenueResponse{
		ID:              rec.ID,
		OrderID:         rec.OrderID,
		ContractorShare: rec.ContractorShare,
		BrokerShare:     rec.BrokerShare,
		InvestorShare:   rec.InvestorShare,
		AdminShare:      rec.AdminShare,
		CreatedAt:       rec.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleListRevenues(w http.ResponseWriter, r *http.Request) {
	records, err := s.revenues.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]revenueResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRevenueResponse(rec))
	}
	s.writeJSON(w, http.StatusOK, out)
}

type messageResponse struct {
	ID        string `json:"id"`
	OrderID   string `json:"orderId"`
	SenderID  string `json:"senderId"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
	Sender    string `json:"sender,omitempty"`
	Role      string `json:"role,omitempty"`
}

func (s *Server) toMessageResponses(r *http.Request, msgs []chat.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp := messageResponse{
			ID:        m.ID,
			OrderID:   m.OrderID,
			SenderID:  m.SenderID,
			Text:      m.Text,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		}
		if info, err := s.chatService.Sender(r.Context(), m.SenderID); err == nil {
			resp.Sender = info.Email
			resp.Role = info.Role
		}
		out = append(out, resp)
	}
	return out
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.chatService.Messages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.toMessageResponses(r, msgs))
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOr401(w, r)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := s.chatService.Post(r.Context(), actor, chi.URLParam(r, "id"), req.Text); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleChatStream serves the live conversation feed as server-sent events.
// Each event carries the full ordered message list. The subscription is torn
// down when the client disconnects.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	feed, cancel, err := s.chatService.Subscribe(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msgs, open := <-feed:
			if !open {
				return
			}
			body, err := json.Marshal(s.toMessageResponses(r, msgs))
			if err != nil {
				s.logger.Error("encode chat snapshot", zap.Error(err))
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", body)
			flusher.Flush()
		}
	}
}
