package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rickgao/stocksync/internal/event"
	"github.com/rickgao/stocksync/internal/market"
	"github.com/rickgao/stocksync/internal/stock"
	"github.com/rickgao/stocksync/internal/subscription"
)

// on adapts a typed payload handler to the bus.
func on[P event.Payload](fn func(context.Context, P) error) subscription.Handler {
	return func(ctx context.Context, ev event.Event) error {
		p, ok := ev.Payload.(P)
		if !ok {
			return fmt.Errorf("%w: %s carries %T", event.ErrMalformedPayload, ev.Name, ev.Payload)
		}
		return fn(ctx, p)
	}
}

// subscribe registers the state handlers. Every catalog event has exactly
// one handler here.
func (a *App) subscribe() error {
	m := a.Market
	subs := []struct {
		name event.Name
		fn   subscription.Handler
	}{
		{event.AppOnInitialize, on(a.onInitialize)},
		{event.AppUpdateSettings, on(func(_ context.Context, p event.SettingsPayload) error {
			a.Stock.SetThresholds(p.Thresholds)
			return nil
		})},

		{event.StockUpdateItems, on(func(_ context.Context, p event.StockItemsPayload) error {
			return a.Stock.ApplyItem(p.StockChange())
		})},
		{event.StockUpdateRivens, on(func(_ context.Context, p event.StockRivensPayload) error {
			return a.Stock.ApplyRiven(p.StockChange())
		})},
		{event.StockUpdatePrice, on(func(_ context.Context, p event.PriceUpdatePayload) error {
			return a.Stock.UpdatePriceByID(p.Kind, p.ID, p.Price)
		})},

		{event.WFMUpdateOrders, on(func(_ context.Context, p event.OrdersPayload) error {
			return market.Apply(m, market.TableOrders, m.Orders, p.Op, p.Value, p.ID, p.All)
		})},
		{event.WFMUpdateAuction, on(func(_ context.Context, p event.AuctionsPayload) error {
			return market.Apply(m, market.TableAuctions, m.Auctions, p.Op, p.Value, p.ID, p.All)
		})},
		{event.WFMUpdateTransaction, on(func(_ context.Context, p event.TransactionsPayload) error {
			return market.Apply(m, market.TableTransactions, m.Transactions, p.Op, p.Value, p.ID, p.All)
		})},
		{event.WFMUpdateChats, on(func(_ context.Context, p event.ChatsPayload) error {
			return market.Apply(m, market.TableChats, m.Chats, p.Op, p.Value, p.ID, p.All)
		})},
		{event.WFMUpdateChatMessages, on(func(_ context.Context, p event.ChatMessagesPayload) error {
			return market.Apply(m, market.TableChatMessages, m.ChatMessages, p.Op, p.Value, p.ID, p.All)
		})},
		{event.UserUpdate, on(func(_ context.Context, p event.UserPayload) error {
			m.SetUser(p.User)
			return nil
		})},

		{event.LiveTradingUpdateRunningState, on(func(_ context.Context, p event.RunningStatePayload) error {
			a.Trading.OnRunningState(p.Running)
			return nil
		})},
		{event.LiveTradingOnError, on(func(_ context.Context, p event.ErrorPayload) error {
			a.Trading.OnError(p)
			return nil
		})},
		{event.LiveTradingOnMessage, on(func(_ context.Context, p event.MessagePayload) error {
			a.Trading.OnMessage(p.Component, p.Message, p.Level)
			return nil
		})},
	}

	for _, s := range subs {
		if err := a.scope.Subscribe(s.name, s.fn); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// onInitialize replaces every collection with the backend's snapshot.
func (a *App) onInitialize(_ context.Context, p event.InitializePayload) error {
	m := a.Market
	a.Stock.SetThresholds(p.Settings)

	errs := []error{
		a.Stock.ApplyItem(stock.Change[stock.Item]{Op: stock.OpSet, All: p.StockItems}),
		a.Stock.ApplyRiven(stock.Change[stock.Riven]{Op: stock.OpSet, All: p.StockRivens}),
		market.Apply(m, market.TableOrders, m.Orders, stock.OpSet, market.Order{}, "", p.Orders),
		market.Apply(m, market.TableAuctions, m.Auctions, stock.OpSet, market.Auction{}, "", p.Auctions),
		market.Apply(m, market.TableTransactions, m.Transactions, stock.OpSet, market.Transaction{}, 0, p.Transactions),
		market.Apply(m, market.TableChats, m.Chats, stock.OpSet, market.Chat{}, "", p.Chats),
	}
	m.SetUser(p.User)
	a.Trading.OnSnapshot(p.Running)

	a.initialized.Store(true)
	a.logger.Info("initial state applied",
		"stock_items", a.Stock.Items.Len(),
		"stock_rivens", a.Stock.Rivens.Len(),
		"orders", m.Orders.Len(),
		"auctions", m.Auctions.Len(),
		"live_trading_running", p.Running,
	)
	return errors.Join(errs...)
}
