package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/session"
	"github.com/mmynk/splitledger/pkg/api"
	"github.com/mmynk/splitledger/pkg/api/apiconnect"
)

const (
	monthLayout = "2006-01"

	// loadTimeout bounds how long a call waits for a just-started session
	// to receive its first groups snapshot.
	loadTimeout = 10 * time.Second
)

// LedgerService implements the Connect LedgerService on top of the
// caller's live session.
type LedgerService struct {
	sessions    *session.Registry
	broadcaster *notify.Broadcaster
	now         func() time.Time
}

var _ apiconnect.LedgerServiceHandler = (*LedgerService)(nil)

// NewLedgerService creates a LedgerService. Notifications for WatchNotifications
// come from broadcaster, which must be among the sessions' emitters.
func NewLedgerService(sessions *session.Registry, broadcaster *notify.Broadcaster) *LedgerService {
	return &LedgerService{
		sessions:    sessions,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// session returns the caller's session once its groups have loaded.
func (s *LedgerService) session(ctx context.Context) (*session.Session, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()
	if err := sess.WaitLoaded(waitCtx); err != nil {
		return nil, fmt.Errorf("session not loaded: %w", err)
	}
	return sess, nil
}

// GetState returns the caller's whole synchronized model.
func (s *LedgerService) GetState(ctx context.Context, req *connect.Request[api.GetStateRequest]) (*connect.Response[api.GetStateResponse], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}

	state := sess.State()
	groups := make([]api.Group, len(state.Groups))
	for i, g := range state.Groups {
		groups[i] = toAPIGroup(g)
	}
	resp := &api.GetStateResponse{
		Version: state.Version,
		Loading: state.Loading,
		Users:   toAPIUsers(state.Users),
		Groups:  groups,
	}
	if state.CurrentUser != nil {
		u := toAPIUser(*state.CurrentUser)
		resp.CurrentUser = &u
	}
	return connect.NewResponse(resp), nil
}

// GetGroupBalances returns every member's balance in one group.
func (s *LedgerService) GetGroupBalances(ctx context.Context, req *connect.Request[api.GetGroupBalancesRequest]) (*connect.Response[api.GetGroupBalancesResponse], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	balances, err := sess.GroupBalances(req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(&api.GetGroupBalancesResponse{Balances: toAPIBalances(balances)}), nil
}

// GetGlobalBalances returns the caller's net balance with each counterparty.
func (s *LedgerService) GetGlobalBalances(ctx context.Context, req *connect.Request[api.GetGlobalBalancesRequest]) (*connect.Response[api.GetGlobalBalancesResponse], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(&api.GetGlobalBalancesResponse{Balances: toAPIBalances(sess.GlobalBalances())}), nil
}

// GetSimplifiedDebts returns the payments that would settle a group.
func (s *LedgerService) GetSimplifiedDebts(ctx context.Context, req *connect.Request[api.GetSimplifiedDebtsRequest]) (*connect.Response[api.GetSimplifiedDebtsResponse], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	debts, err := sess.SimplifiedDebts(req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(&api.GetSimplifiedDebtsResponse{Debts: toAPIDebts(debts)}), nil
}

// GetInsights summarizes the caller's spending for one month.
func (s *LedgerService) GetInsights(ctx context.Context, req *connect.Request[api.GetInsightsRequest]) (*connect.Response[api.GetInsightsResponse], error) {
	month := s.now().UTC()
	if req.Msg.Month != "" {
		parsed, err := time.Parse(monthLayout, req.Msg.Month)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%w: month must look like 2024-06", session.ErrInvalidInput))
		}
		month = parsed
	}

	sess, err := s.session(ctx)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}

	summary := sess.Insights(month)
	byCategory := make([]api.CategorySpend, len(summary.ByCategory))
	for i, c := range summary.ByCategory {
		byCategory[i] = api.CategorySpend{Category: string(c.Category), Amount: c.Amount}
	}
	return connect.NewResponse(&api.GetInsightsResponse{
		Month:      summary.Month.Format(monthLayout),
		Spent:      summary.Spent,
		Limit:      summary.Limit,
		HasLimit:   summary.HasLimit,
		Remaining:  summary.Remaining,
		OverLimit:  summary.OverLimit(),
		ByCategory: byCategory,
	}), nil
}

// AddGroup creates a group with the caller as a member.
func (s *LedgerService) AddGroup(ctx context.Context, req *connect.Request[api.AddGroupRequest]) (*connect.Response[api.AddGroupResponse], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	id, err := sess.AddGroup(ctx, session.GroupInput{Name: req.Msg.Name, MemberIDs: req.Msg.MemberIDs})
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(&api.AddGroupResponse{GroupID: id}), nil
}

// AddExpense records an expense in one of the caller's groups.
func (s *LedgerService) AddExpense(ctx context.Context, req *connect.Request[api.AddExpenseRequest]) (*connect.Response[api.TransactionResponse], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	id, err := sess.AddExpense(ctx, session.ExpenseInput{
		GroupID:      req.Msg.GroupID,
		Description:  req.Msg.Description,
		Amount:       req.Msg.Amount,
		PayerID:      req.Msg.PayerID,
		SplitMethod:  models.SplitMethod(req.Msg.SplitMethod),
		Participants: req.Msg.Participants,
		Shares:       req.Msg.Shares,
		Category:     models.Category(req.Msg.Category),
	})
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	slog.Info("Expense added", "user_id", sess.UserID(), "group_id", req.Msg.GroupID, "transaction_id", id)
	return connect.NewResponse(&api.TransactionResponse{TransactionID: id}), nil
}

// SettleUp records a payment between two members of a group.
func (s *LedgerService) SettleUp(ctx context.Context, req *connect.Request[api.SettleUpRequest]) (*connect.Response[api.TransactionResponse], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	id, err := sess.SettleUp(ctx, session.SettlementInput{
		GroupID:    req.Msg.GroupID,
		FromUserID: req.Msg.FromUserID,
		ToUserID:   req.Msg.ToUserID,
		Amount:     req.Msg.Amount,
	})
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	slog.Info("Settlement added", "user_id", sess.UserID(), "group_id", req.Msg.GroupID, "transaction_id", id)
	return connect.NewResponse(&api.TransactionResponse{TransactionID: id}), nil
}

// EditTransaction replaces an existing transaction's contents.
func (s *LedgerService) EditTransaction(ctx context.Context, req *connect.Request[api.EditTransactionRequest]) (*connect.Response[api.Empty], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	if err := sess.EditTransaction(ctx, fromAPITransaction(req.Msg.Transaction)); err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(&api.Empty{}), nil
}

// DeleteTransaction removes one transaction.
func (s *LedgerService) DeleteTransaction(ctx context.Context, req *connect.Request[api.DeleteTransactionRequest]) (*connect.Response[api.Empty], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	if err := sess.DeleteTransaction(ctx, req.Msg.GroupID, req.Msg.TransactionID); err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(&api.Empty{}), nil
}

// DeleteGroup removes a group together with its transactions.
func (s *LedgerService) DeleteGroup(ctx context.Context, req *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.Empty], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	if err := sess.DeleteGroup(ctx, req.Msg.GroupID); err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(&api.Empty{}), nil
}

// UpdateUserLimit sets the caller's monthly spending limit.
func (s *LedgerService) UpdateUserLimit(ctx context.Context, req *connect.Request[api.UpdateUserLimitRequest]) (*connect.Response[api.Empty], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	if err := sess.UpdateUserLimit(ctx, req.Msg.MonthlyLimit); err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(&api.Empty{}), nil
}

// UpdateNotificationPreferences replaces the caller's notification switches.
func (s *LedgerService) UpdateNotificationPreferences(ctx context.Context, req *connect.Request[api.UpdateNotificationPreferencesRequest]) (*connect.Response[api.Empty], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	if err := sess.UpdateNotificationPreferences(ctx, fromAPIPreferences(req.Msg.Preferences)); err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	return connect.NewResponse(&api.Empty{}), nil
}

// FindUserByEmail looks up a user. A miss is a successful empty response.
func (s *LedgerService) FindUserByEmail(ctx context.Context, req *connect.Request[api.FindUserByEmailRequest]) (*connect.Response[api.FindUserByEmailResponse], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	user, err := sess.FindUserByEmail(ctx, req.Msg.Email)
	if err != nil {
		return nil, toConnectError(req.Spec().Procedure, err)
	}
	resp := &api.FindUserByEmailResponse{}
	if user != nil {
		u := toAPIUser(*user)
		resp.User = &u
	}
	return connect.NewResponse(resp), nil
}

// WatchNotifications streams the caller's notifications until the client
// goes away or the caller's session ends.
func (s *LedgerService) WatchNotifications(ctx context.Context, req *connect.Request[api.WatchNotificationsRequest], stream *connect.ServerStream[api.Notification]) error {
	sess, err := s.session(ctx)
	if err != nil {
		return toConnectError(req.Spec().Procedure, err)
	}

	notifications, cancel := s.broadcaster.Watch(sess.UserID())
	defer cancel()
	slog.Info("Watching notifications", "user_id", sess.UserID())

	// A nil message flushes the response headers so the client sees the stream open.
	if err := stream.Send(nil); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			return nil
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			if err := stream.Send(toAPINotification(n)); err != nil {
				return err
			}
		}
	}
}
