package apiconnect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/pkg/api"
)

const (
	// LedgerServiceName is the fully-qualified name of the LedgerService service.
	LedgerServiceName = "splitledger.v1.LedgerService"
)

// Fully-qualified procedure names of the LedgerService RPCs.
const (
	LedgerServiceGetStateProcedure                      = "/splitledger.v1.LedgerService/GetState"
	LedgerServiceGetGroupBalancesProcedure              = "/splitledger.v1.LedgerService/GetGroupBalances"
	LedgerServiceGetGlobalBalancesProcedure             = "/splitledger.v1.LedgerService/GetGlobalBalances"
	LedgerServiceGetSimplifiedDebtsProcedure            = "/splitledger.v1.LedgerService/GetSimplifiedDebts"
	LedgerServiceGetInsightsProcedure                   = "/splitledger.v1.LedgerService/GetInsights"
	LedgerServiceAddGroupProcedure                      = "/splitledger.v1.LedgerService/AddGroup"
	LedgerServiceAddExpenseProcedure                    = "/splitledger.v1.LedgerService/AddExpense"
	LedgerServiceSettleUpProcedure                      = "/splitledger.v1.LedgerService/SettleUp"
	LedgerServiceEditTransactionProcedure               = "/splitledger.v1.LedgerService/EditTransaction"
	LedgerServiceDeleteTransactionProcedure             = "/splitledger.v1.LedgerService/DeleteTransaction"
	LedgerServiceDeleteGroupProcedure                   = "/splitledger.v1.LedgerService/DeleteGroup"
	LedgerServiceUpdateUserLimitProcedure               = "/splitledger.v1.LedgerService/UpdateUserLimit"
	LedgerServiceUpdateNotificationPreferencesProcedure = "/splitledger.v1.LedgerService/UpdateNotificationPreferences"
	LedgerServiceFindUserByEmailProcedure               = "/splitledger.v1.LedgerService/FindUserByEmail"
	LedgerServiceWatchNotificationsProcedure            = "/splitledger.v1.LedgerService/WatchNotifications"
)

// LedgerServiceClient is a client for the splitledger.v1.LedgerService service.
type LedgerServiceClient interface {
	GetState(context.Context, *connect.Request[api.GetStateRequest]) (*connect.Response[api.GetStateResponse], error)
	GetGroupBalances(context.Context, *connect.Request[api.GetGroupBalancesRequest]) (*connect.Response[api.GetGroupBalancesResponse], error)
	GetGlobalBalances(context.Context, *connect.Request[api.GetGlobalBalancesRequest]) (*connect.Response[api.GetGlobalBalancesResponse], error)
	GetSimplifiedDebts(context.Context, *connect.Request[api.GetSimplifiedDebtsRequest]) (*connect.Response[api.GetSimplifiedDebtsResponse], error)
	GetInsights(context.Context, *connect.Request[api.GetInsightsRequest]) (*connect.Response[api.GetInsightsResponse], error)
	AddGroup(context.Context, *connect.Request[api.AddGroupRequest]) (*connect.Response[api.AddGroupResponse], error)
	AddExpense(context.Context, *connect.Request[api.AddExpenseRequest]) (*connect.Response[api.TransactionResponse], error)
	SettleUp(context.Context, *connect.Request[api.SettleUpRequest]) (*connect.Response[api.TransactionResponse], error)
	EditTransaction(context.Context, *connect.Request[api.EditTransactionRequest]) (*connect.Response[api.Empty], error)
	DeleteTransaction(context.Context, *connect.Request[api.DeleteTransactionRequest]) (*connect.Response[api.Empty], error)
	DeleteGroup(context.Context, *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.Empty], error)
	UpdateUserLimit(context.Context, *connect.Request[api.UpdateUserLimitRequest]) (*connect.Response[api.Empty], error)
	UpdateNotificationPreferences(context.Context, *connect.Request[api.UpdateNotificationPreferencesRequest]) (*connect.Response[api.Empty], error)
	FindUserByEmail(context.Context, *connect.Request[api.FindUserByEmailRequest]) (*connect.Response[api.FindUserByEmailResponse], error)
	WatchNotifications(context.Context, *connect.Request[api.WatchNotificationsRequest]) (*connect.ServerStreamForClient[api.Notification], error)
}

// NewLedgerServiceClient constructs a client for the splitledger.v1.LedgerService service.
// The client always speaks the Connect protocol with the JSON codec.
func NewLedgerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) LedgerServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &ledgerServiceClient{
		getState:                      connect.NewClient[api.GetStateRequest, api.GetStateResponse](httpClient, baseURL+LedgerServiceGetStateProcedure, opts...),
		getGroupBalances:              connect.NewClient[api.GetGroupBalancesRequest, api.GetGroupBalancesResponse](httpClient, baseURL+LedgerServiceGetGroupBalancesProcedure, opts...),
		getGlobalBalances:             connect.NewClient[api.GetGlobalBalancesRequest, api.GetGlobalBalancesResponse](httpClient, baseURL+LedgerServiceGetGlobalBalancesProcedure, opts...),
		getSimplifiedDebts:            connect.NewClient[api.GetSimplifiedDebtsRequest, api.GetSimplifiedDebtsResponse](httpClient, baseURL+LedgerServiceGetSimplifiedDebtsProcedure, opts...),
		getInsights:                   connect.NewClient[api.GetInsightsRequest, api.GetInsightsResponse](httpClient, baseURL+LedgerServiceGetInsightsProcedure, opts...),
		addGroup:                      connect.NewClient[api.AddGroupRequest, api.AddGroupResponse](httpClient, baseURL+LedgerServiceAddGroupProcedure, opts...),
		addExpense:                    connect.NewClient[api.AddExpenseRequest, api.TransactionResponse](httpClient, baseURL+LedgerServiceAddExpenseProcedure, opts...),
		settleUp:                      connect.NewClient[api.SettleUpRequest, api.TransactionResponse](httpClient, baseURL+LedgerServiceSettleUpProcedure, opts...),
		editTransaction:               connect.NewClient[api.EditTransactionRequest, api.Empty](httpClient, baseURL+LedgerServiceEditTransactionProcedure, opts...),
		deleteTransaction:             connect.NewClient[api.DeleteTransactionRequest, api.Empty](httpClient, baseURL+LedgerServiceDeleteTransactionProcedure, opts...),
		deleteGroup:                   connect.NewClient[api.DeleteGroupRequest, api.Empty](httpClient, baseURL+LedgerServiceDeleteGroupProcedure, opts...),
		updateUserLimit:               connect.NewClient[api.UpdateUserLimitRequest, api.Empty](httpClient, baseURL+LedgerServiceUpdateUserLimitProcedure, opts...),
		updateNotificationPreferences: connect.NewClient[api.UpdateNotificationPreferencesRequest, api.Empty](httpClient, baseURL+LedgerServiceUpdateNotificationPreferencesProcedure, opts...),
		findUserByEmail:               connect.NewClient[api.FindUserByEmailRequest, api.FindUserByEmailResponse](httpClient, baseURL+LedgerServiceFindUserByEmailProcedure, opts...),
		watchNotifications:            connect.NewClient[api.WatchNotificationsRequest, api.Notification](httpClient, baseURL+LedgerServiceWatchNotificationsProcedure, opts...),
	}
}

type ledgerServiceClient struct {
	getState                      *connect.Client[api.GetStateRequest, api.GetStateResponse]
	getGroupBalances              *connect.Client[api.GetGroupBalancesRequest, api.GetGroupBalancesResponse]
	getGlobalBalances             *connect.Client[api.GetGlobalBalancesRequest, api.GetGlobalBalancesResponse]
	getSimplifiedDebts            *connect.Client[api.GetSimplifiedDebtsRequest, api.GetSimplifiedDebtsResponse]
	getInsights                   *connect.Client[api.GetInsightsRequest, api.GetInsightsResponse]
	addGroup                      *connect.Client[api.AddGroupRequest, api.AddGroupResponse]
	addExpense                    *connect.Client[api.AddExpenseRequest, api.TransactionResponse]
	settleUp                      *connect.Client[api.SettleUpRequest, api.TransactionResponse]
	editTransaction               *connect.Client[api.EditTransactionRequest, api.Empty]
	deleteTransaction             *connect.Client[api.DeleteTransactionRequest, api.Empty]
	deleteGroup                   *connect.Client[api.DeleteGroupRequest, api.Empty]
	updateUserLimit               *connect.Client[api.UpdateUserLimitRequest, api.Empty]
	updateNotificationPreferences *connect.Client[api.UpdateNotificationPreferencesRequest, api.Empty]
	findUserByEmail               *connect.Client[api.FindUserByEmailRequest, api.FindUserByEmailResponse]
	watchNotifications            *connect.Client[api.WatchNotificationsRequest, api.Notification]
}

func (c *ledgerServiceClient) GetState(ctx context.Context, req *connect.Request[api.GetStateRequest]) (*connect.Response[api.GetStateResponse], error) {
	return c.getState.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) GetGroupBalances(ctx context.Context, req *connect.Request[api.GetGroupBalancesRequest]) (*connect.Response[api.GetGroupBalancesResponse], error) {
	return c.getGroupBalances.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) GetGlobalBalances(ctx context.Context, req *connect.Request[api.GetGlobalBalancesRequest]) (*connect.Response[api.GetGlobalBalancesResponse], error) {
	return c.getGlobalBalances.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) GetSimplifiedDebts(ctx context.Context, req *connect.Request[api.GetSimplifiedDebtsRequest]) (*connect.Response[api.GetSimplifiedDebtsResponse], error) {
	return c.getSimplifiedDebts.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) GetInsights(ctx context.Context, req *connect.Request[api.GetInsightsRequest]) (*connect.Response[api.GetInsightsResponse], error) {
	return c.getInsights.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) AddGroup(ctx context.Context, req *connect.Request[api.AddGroupRequest]) (*connect.Response[api.AddGroupResponse], error) {
	return c.addGroup.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) AddExpense(ctx context.Context, req *connect.Request[api.AddExpenseRequest]) (*connect.Response[api.TransactionResponse], error) {
	return c.addExpense.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) SettleUp(ctx context.Context, req *connect.Request[api.SettleUpRequest]) (*connect.Response[api.TransactionResponse], error) {
	return c.settleUp.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) EditTransaction(ctx context.Context, req *connect.Request[api.EditTransactionRequest]) (*connect.Response[api.Empty], error) {
	return c.editTransaction.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) DeleteTransaction(ctx context.Context, req *connect.Request[api.DeleteTransactionRequest]) (*connect.Response[api.Empty], error) {
	return c.deleteTransaction.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) DeleteGroup(ctx context.Context, req *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.Empty], error) {
	return c.deleteGroup.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) UpdateUserLimit(ctx context.Context, req *connect.Request[api.UpdateUserLimitRequest]) (*connect.Response[api.Empty], error) {
	return c.updateUserLimit.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) UpdateNotificationPreferences(ctx context.Context, req *connect.Request[api.UpdateNotificationPreferencesRequest]) (*connect.Response[api.Empty], error) {
	return c.updateNotificationPreferences.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) FindUserByEmail(ctx context.Context, req *connect.Request[api.FindUserByEmailRequest]) (*connect.Response[api.FindUserByEmailResponse], error) {
	return c.findUserByEmail.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) WatchNotifications(ctx context.Context, req *connect.Request[api.WatchNotificationsRequest]) (*connect.ServerStreamForClient[api.Notification], error) {
	return c.watchNotifications.CallServerStream(ctx, req)
}

// LedgerServiceHandler is an implementation of the splitledger.v1.LedgerService service.
type LedgerServiceHandler interface {
	GetState(context.Context, *connect.Request[api.GetStateRequest]) (*connect.Response[api.GetStateResponse], error)
	GetGroupBalances(context.Context, *connect.Request[api.GetGroupBalancesRequest]) (*connect.Response[api.GetGroupBalancesResponse], error)
	GetGlobalBalances(context.Context, *connect.Request[api.GetGlobalBalancesRequest]) (*connect.Response[api.GetGlobalBalancesResponse], error)
	GetSimplifiedDebts(context.Context, *connect.Request[api.GetSimplifiedDebtsRequest]) (*connect.Response[api.GetSimplifiedDebtsResponse], error)
	GetInsights(context.Context, *connect.Request[api.GetInsightsRequest]) (*connect.Response[api.GetInsightsResponse], error)
	AddGroup(context.Context, *connect.Request[api.AddGroupRequest]) (*connect.Response[api.AddGroupResponse], error)
	AddExpense(context.Context, *connect.Request[api.AddExpenseRequest]) (*connect.Response[api.TransactionResponse], error)
	SettleUp(context.Context, *connect.Request[api.SettleUpRequest]) (*connect.Response[api.TransactionResponse], error)
	EditTransaction(context.Context, *connect.Request[api.EditTransactionRequest]) (*connect.Response[api.Empty], error)
	DeleteTransaction(context.Context, *connect.Request[api.DeleteTransactionRequest]) (*connect.Response[api.Empty], error)
	DeleteGroup(context.Context, *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.Empty], error)
	UpdateUserLimit(context.Context, *connect.Request[api.UpdateUserLimitRequest]) (*connect.Response[api.Empty], error)
	UpdateNotificationPreferences(context.Context, *connect.Request[api.UpdateNotificationPreferencesRequest]) (*connect.Response[api.Empty], error)
	FindUserByEmail(context.Context, *connect.Request[api.FindUserByEmailRequest]) (*connect.Response[api.FindUserByEmailResponse], error)
	WatchNotifications(context.Context, *connect.Request[api.WatchNotificationsRequest], *connect.ServerStream[api.Notification]) error
}

// NewLedgerServiceHandler builds an HTTP handler from the service implementation.
// It returns the path on which to mount the handler and the handler itself.
func NewLedgerServiceHandler(svc LedgerServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	handlers := map[string]http.Handler{
		LedgerServiceGetStateProcedure:                      connect.NewUnaryHandler(LedgerServiceGetStateProcedure, svc.GetState, opts...),
		LedgerServiceGetGroupBalancesProcedure:              connect.NewUnaryHandler(LedgerServiceGetGroupBalancesProcedure, svc.GetGroupBalances, opts...),
		LedgerServiceGetGlobalBalancesProcedure:             connect.NewUnaryHandler(LedgerServiceGetGlobalBalancesProcedure, svc.GetGlobalBalances, opts...),
		LedgerServiceGetSimplifiedDebtsProcedure:            connect.NewUnaryHandler(LedgerServiceGetSimplifiedDebtsProcedure, svc.GetSimplifiedDebts, opts...),
		LedgerServiceGetInsightsProcedure:                   connect.NewUnaryHandler(LedgerServiceGetInsightsProcedure, svc.GetInsights, opts...),
		LedgerServiceAddGroupProcedure:                      connect.NewUnaryHandler(LedgerServiceAddGroupProcedure, svc.AddGroup, opts...),
		LedgerServiceAddExpenseProcedure:                    connect.NewUnaryHandler(LedgerServiceAddExpenseProcedure, svc.AddExpense, opts...),
		LedgerServiceSettleUpProcedure:                      connect.NewUnaryHandler(LedgerServiceSettleUpProcedure, svc.SettleUp, opts...),
		LedgerServiceEditTransactionProcedure:               connect.NewUnaryHandler(LedgerServiceEditTransactionProcedure, svc.EditTransaction, opts...),
		LedgerServiceDeleteTransactionProcedure:             connect.NewUnaryHandler(LedgerServiceDeleteTransactionProcedure, svc.DeleteTransaction, opts...),
		LedgerServiceDeleteGroupProcedure:                   connect.NewUnaryHandler(LedgerServiceDeleteGroupProcedure, svc.DeleteGroup, opts...),
		LedgerServiceUpdateUserLimitProcedure:               connect.NewUnaryHandler(LedgerServiceUpdateUserLimitProcedure, svc.UpdateUserLimit, opts...),
		LedgerServiceUpdateNotificationPreferencesProcedure: connect.NewUnaryHandler(LedgerServiceUpdateNotificationPreferencesProcedure, svc.UpdateNotificationPreferences, opts...),
		LedgerServiceFindUserByEmailProcedure:               connect.NewUnaryHandler(LedgerServiceFindUserByEmailProcedure, svc.FindUserByEmail, opts...),
		LedgerServiceWatchNotificationsProcedure:            connect.NewServerStreamHandler(LedgerServiceWatchNotificationsProcedure, svc.WatchNotifications, opts...),
	}
	return "/" + LedgerServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}
