// Package httpapi exposes the workflow over HTTP: one public login and
// registration surface plus the protected per-role operations.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"orderflow/auth"
	"orderflow/bid"
	"orderflow/chat"
	"orderflow/order"
	"orderflow/revenue"
)

// AuthService is the slice of the auth service the HTTP layer consumes.
type AuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	ActorFromToken(ctx context.Context, token string) (auth.Actor, error)
	ListUsers(ctx context.Context, actor auth.Actor) ([]auth.User, error)
	VerifyKYC(ctx context.Context, actor auth.Actor, userID string) (auth.User, error)
	DeleteUser(ctx context.Context, actor auth.Actor, userID string) error
}

// OrderService covers order creation and dashboard reads.
type OrderService interface {
	Create(ctx context.Context, actor auth.Actor, params order.CreateParams) (order.Order, error)
	Get(ctx context.Context, id string) (order.Order, error)
	ListByStatus(ctx context.Context, status order.Status) ([]order.Order, error)
	ListAll(ctx context.Context) ([]order.Order, error)
}

// TransitionService applies actor-requested status transitions.
type TransitionService interface {
	Transition(ctx context.Context, actor auth.Actor, orderID string, target order.Status) (order.Order, error)
}

// BidService is the bid ledger surface.
type BidService interface {
	Place(ctx context.Context, actor auth.Actor, orderID string, amount float64) (bid.Bid, error)
	SelectWinner(ctx context.Context, actor auth.Actor, bidID string) (bid.Bid, order.Order, error)
	ListPending(ctx context.Context) ([]bid.Bid, error)
	ListByOrder(ctx context.Context, orderID string) ([]bid.Bid, error)
}

// DeliveryService covers allocation and delivery confirmation.
type DeliveryService interface {
	Allocate(ctx context.Context, actor auth.Actor, orderID string) (order.Order, error)
	ConfirmDelivery(ctx context.Context, actor auth.Actor, orderID string) (order.Order, revenue.Record, error)
}

// RevenueLister serves the admin revenue summary.
type RevenueLister interface {
	List(ctx context.Context) ([]revenue.Record, error)
}

// ChatService is the per-order conversation surface.
type ChatService interface {
	Post(ctx context.Context, actor auth.Actor, orderID, text string) error
	Messages(ctx context.Context, orderID string) ([]chat.Message, error)
	Subscribe(ctx context.Context, orderID string) (<-chan []chat.Message, func(), error)
	Sender(ctx context.Context, senderID string) (chat.SenderInfo, error)
}

// Server bundles the services behind the HTTP routes.
type Server struct {
	logger          *zap.Logger
	authService     AuthService
	orderService    OrderService
	transitions     TransitionService
	bidService      BidService
	deliveryService DeliveryService
	revenues        RevenueLister
	chatService     ChatService
}

// NewServer wires the HTTP layer. All dependencies are injected; the server
// holds no ambient state.
func NewServer(
	logger *zap.Logger,
	authService AuthService,
	orderService OrderService,
	transitions TransitionService,
	bidService BidService,
	deliveryService DeliveryService,
	revenues RevenueLister,
	chatService ChatService,
) *Server {
	return &Server{
		logger:          logger,
		authService:     authService,
		orderService:    orderService,
		transitions:     transitions,
		bidService:      bidService,
		deliveryService: deliveryService,
		revenues:        revenues,
		chatService:     chatService,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(requestLogger(s.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/users", s.handleListUsers)
			r.Post("/users/{id}/kyc", s.handleVerifyKYC)
			r.Delete("/users/{id}", s.handleDeleteUser)

			r.Post("/orders", s.handleCreateOrder)
			r.Get("/orders", s.handleListOrders)
			r.Get("/orders/{id}", s.handleGetOrder)
			r.Post("/orders/{id}/transition", s.handleTransition)
			r.Post("/orders/{id}/allocate", s.handleAllocate)
			r.Post("/orders/{id}/deliver", s.handleDeliver)

			r.Post("/orders/{id}/bids", s.handlePlaceBid)
			r.Get("/orders/{id}/bids", s.handleListOrderBids)
			r.Get("/bids/pending", s.handleListPendingBids)
			r.Post("/bids/{id}/select", s.handleSelectBid)

			r.Get("/revenues", s.handleListRevenues)

			r.Get("/orders/{id}/chat", s.handleListMessages)
			r.Post("/orders/{id}/chat", s.handlePostMessage)
			r.Get("/orders/{id}/chat/stream", s.handleChatStream)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
