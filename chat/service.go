// Package chat is the per-order append-only message channel with live
// subscriptions.
package chat

import (
	"context"
	"errors"
	"strings"

	"orderflow/auth"
	"orderflow/fault"
)

// UserLookup resolves sender display info; satisfied by auth.Repository.
type UserLookup interface {
	GetUserByID(ctx context.Context, userID string) (auth.User, error)
}

// Service owns the message log, its live feeds, and the sender info cache.
type Service struct {
	repo  Repository
	users UserLookup
	hub   *hub
	cache *senderCache
}

// NewService wires the chat channel. cacheCapacity bounds the sender info
// cache; zero selects the default.
func NewService(repo Repository, users UserLookup, cacheCapacity int) *Service {
	return &Service{
		repo:  repo,
		users: users,
		hub:   newHub(),
		cache: newSenderCache(cacheCapacity),
	}
}

// Post appends a message to the order's conversation and wakes subscribers.
// Empty or whitespace-only text is a silent no-op: no write, no error.
func (s *Service) Post(ctx context.Context, actor auth.Actor, orderID, text string) error {
	const op = "chat.post"

	if err := auth.RequireKYC(op, actor); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if _, err := s.repo.Insert(ctx, Message{
		OrderID:  orderID,
		SenderID: actor.UserID,
		Text:     text,
	}); err != nil {
		return err
	}

	s.hub.notify(orderID)
	return nil
}

// Messages returns the full ordered conversation for an order.
func (s *Service) Messages(ctx context.Context, orderID string) ([]Message, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

// Subscribe opens a live feed for the order's conversation. The returned
// channel receives the full ordered message list, re-delivered on every new
// message, and is closed on teardown. The cancel func must be called when
// the caller is done; cancelling ctx tears the feed down as well.
func (s *Service) Subscribe(ctx context.Context, orderID string) (<-chan []Message, func(), error) {
	initial, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	id, wake := s.hub.subscribe(orderID)
	out := make(chan []Message, 1)

	go func() {
		defer func() {
			s.hub.unsubscribe(orderID, id)
			close(out)
		}()

		if !deliver(subCtx, out, initial) {
			return
		}

		for {
			select {
			case <-subCtx.Done():
				return
			case <-wake:
				msgs, err := s.repo.ListByOrder(subCtx, orderID)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					continue
				}
				if !deliver(subCtx, out, msgs) {
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// deliver replaces any undrained snapshot with the fresh one so a slow
// consumer only ever sees the latest full list.
func deliver(ctx context.Context, out chan []Message, msgs []Message) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case out <- msgs:
			return true
		default:
			select {
			case <-out:
			default:
			}
		}
	}
}

// Sender resolves display info for a message sender through the bounded
// read-through cache.
func (s *Service) Sender(ctx context.Context, senderID string) (SenderInfo, error) {
	if info, ok := s.cache.get(senderID); ok {
		return info, nil
	}

	user, err := s.users.GetUserByID(ctx, senderID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return SenderInfo{}, fault.Wrap(fault.KindNotFound, "chat.sender", err)
		}
		return SenderInfo{}, err
	}

	info := SenderInfo{Email: user.Email, Role: string(user.Role)}
	s.cache.put(senderID, info)
	return info, nil
}
