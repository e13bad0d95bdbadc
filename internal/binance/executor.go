package binance

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/clock"
	"main/internal/shm"
	"main/pkg/exception"
)

// EventSink receives order events from REST workers. The gateway's event
// writer implements it; workers never touch the event ring directly, which
// keeps the ring's single-producer contract intact.
type EventSink interface {
	Submit(frame *shm.OrderEventFrame) error
}

// Executor translates command frames into signed REST calls and reports the
// lifecycle outcome as order events. Every dispatched command runs on its
// own short-lived worker so HTTP latency never stalls WebSocket intake; the
// startup calls (CancelAllSync, FetchAccountInfo, FetchAndSetPrecision,
// SetupTrading) run synchronously on the caller.
type Executor struct {
	client  *Client
	events  EventSink
	account *shm.AccountSnapshot

	wg sync.WaitGroup
}

// NewExecutor wires the executor against one REST client and the bus snapshot.
func NewExecutor(client *Client, events EventSink, account *shm.AccountSnapshot) *Executor {
	return &Executor{client: client, events: events, account: account}
}

// Dispatch routes one command frame by action. The frame is copied before the
// worker starts; the ring slot is free the moment Dispatch returns.
func (e *Executor) Dispatch(ctx context.Context, cmd *shm.CommandFrame) error {
	frame := *cmd
	switch cmd.Action {
	case shm.ActionNew:
		e.spawn(func() { e.placeOrder(ctx, frame) })
	case shm.ActionCancel:
		e.spawn(func() { e.cancelOrder(ctx, frame) })
	case shm.ActionAmend:
		e.spawn(func() { e.amendOrder(ctx, frame) })
	case shm.ActionCancelAll:
		e.spawn(func() { e.cancelAll(ctx, frame.SymbolString()) })
	default:
		return exception.ErrOrderUnsupportedAction
	}
	return nil
}

// Wait blocks until every in-flight worker has finished. Called during
// shutdown while the event writer is still draining.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) spawn(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// orderResponse covers POST/DELETE/PUT /fapi/v1/order success bodies.
// Quantities arrive as numeric strings.
type orderResponse struct {
	OrderID     int64           `json:"orderId"`
	Status      string          `json:"status"`
	OrigQty     decimal.Decimal `json:"origQty"`
	ExecutedQty decimal.Decimal `json:"executedQty"`
	AvgPrice    decimal.Decimal `json:"avgPrice"`
	UpdateTime  uint64          `json:"updateTime"`
}

func (e *Executor) placeOrder(ctx context.Context, cmd shm.CommandFrame) {
	params := Params{}.
		Add("symbol", cmd.SymbolString()).
		Add("side", sideName(cmd.Side))

	switch cmd.Type {
	case shm.OrderMarket:
		params = params.Add("type", "MARKET")
	default:
		params = params.
			Add("type", "LIMIT").
			Add("timeInForce", tifName(cmd.Tif)).
			Add("price", e.formatPrice(cmd.Price))
	}
	params = params.
		Add("quantity", e.formatQty(cmd.Quantity)).
		Add("newClientOrderId", cmd.ClientOrderIDString())

	status, body, err := e.client.Do(ctx, http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		e.emitTransportReject(cmd, err)
		return
	}
	if status != http.StatusOK {
		e.emitExchangeReject(cmd, body)
		return
	}

	var resp orderResponse
	if err := sonic.ConfigFastest.Unmarshal(body, &resp); err != nil {
		logs.Errorf("decode order response, err: %+v", err)
		e.emitTransportReject(cmd, exception.ErrOrderDecodeResponse)
		return
	}

	event := e.baseEvent(cmd, statusToEvent(resp.Status))
	event.TimestampNs = timestampNs(resp.UpdateTime)
	event.FillQty = toFloat(resp.ExecutedQty)
	event.FillPrice = toFloat(resp.AvgPrice)
	event.RemainingQty = clampQty(cmd.Quantity - event.FillQty)
	e.submit(&event)
}

func (e *Executor) cancelOrder(ctx context.Context, cmd shm.CommandFrame) {
	params := Params{}.
		Add("symbol", cmd.SymbolString()).
		Add("origClientOrderId", cmd.ClientOrderIDString())

	status, body, err := e.client.Do(ctx, http.MethodDelete, "/fapi/v1/order", params, true)
	if err != nil {
		e.emitTransportReject(cmd, err)
		return
	}
	if status != http.StatusOK {
		e.emitExchangeReject(cmd, body)
		return
	}

	var resp orderResponse
	_ = sonic.ConfigFastest.Unmarshal(body, &resp)

	event := e.baseEvent(cmd, shm.EvtCanceled)
	event.TimestampNs = timestampNs(resp.UpdateTime)
	event.FillQty = toFloat(resp.ExecutedQty)
	event.RemainingQty = clampQty(toFloat(resp.OrigQty) - event.FillQty)
	e.submit(&event)
}

func (e *Executor) amendOrder(ctx context.Context, cmd shm.CommandFrame) {
	params := Params{}.
		Add("symbol", cmd.SymbolString()).
		Add("origClientOrderId", cmd.ClientOrderIDString()).
		Add("side", sideName(cmd.Side)).
		Add("quantity", e.formatQty(cmd.NewQuantity)).
		Add("price", e.formatPrice(cmd.NewPrice))

	status, body, err := e.client.Do(ctx, http.MethodPut, "/fapi/v1/order", params, true)
	if err != nil {
		e.emitTransportReject(cmd, err)
		return
	}
	if status != http.StatusOK {
		e.emitExchangeReject(cmd, body)
		return
	}

	var resp orderResponse
	_ = sonic.ConfigFastest.Unmarshal(body, &resp)

	event := e.baseEvent(cmd, shm.EvtAmended)
	event.TimestampNs = timestampNs(resp.UpdateTime)
	event.FillPrice = cmd.NewPrice
	event.FillQty = toFloat(resp.ExecutedQty)
	event.RemainingQty = clampQty(cmd.NewQuantity - event.FillQty)
	e.submit(&event)
}

// cancelAll clears the book for one symbol. Success emits no events: an
// empty book cancel is a no-op from the strategy's point of view.
func (e *Executor) cancelAll(ctx context.Context, symbol string) {
	params := Params{}.Add("symbol", symbol)

	status, body, err := e.client.Do(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", params, true)
	if err != nil {
		logs.Errorf("cancel all orders, err: %+v", err)
		return
	}
	if status != http.StatusOK {
		logs.Errorf("cancel all orders: HTTP %d %s", status, body)
	}
}

// CancelAllSync is the synchronous form used at startup (emergency flush).
func (e *Executor) CancelAllSync(ctx context.Context, symbol string) {
	e.cancelAll(ctx, symbol)
}

type accountResponse struct {
	Assets []struct {
		Asset string          `json:"asset"`
		Free  decimal.Decimal `json:"free"`
	} `json:"assets"`
	Positions []struct {
		Symbol      string          `json:"symbol"`
		PositionAmt decimal.Decimal `json:"positionAmt"`
		EntryPrice  decimal.Decimal `json:"entryPrice"`
	} `json:"positions"`
}

// FetchAccountInfo pulls /fapi/v2/account and stores the USDT balance and
// the symbol's position into the snapshot.
func (e *Executor) FetchAccountInfo(ctx context.Context, symbol string) error {
	status, body, err := e.client.Do(ctx, http.MethodGet, "/fapi/v2/account", nil, true)
	if err != nil {
		return errors.Wrap(err, "fetch account")
	}
	if status != http.StatusOK {
		return errors.Errorf("fetch account: HTTP %d %s", status, body)
	}

	var resp accountResponse
	if err := sonic.ConfigFastest.Unmarshal(body, &resp); err != nil {
		return errors.Wrap(err, "decode account response")
	}

	for _, asset := range resp.Assets {
		if asset.Asset != "USDT" {
			continue
		}
		e.account.SetUSDTBalance(toFloat(asset.Free))
		break
	}
	for _, pos := range resp.Positions {
		if pos.Symbol != symbol {
			continue
		}
		e.account.SetPositionAmt(toFloat(pos.PositionAmt))
		e.account.SetAvgPrice(toFloat(pos.EntryPrice))
		break
	}
	logs.Infof("account synced: usdt=%.4f position=%.6f avg=%.4f",
		e.account.USDTBalance(), e.account.PositionAmt(), e.account.AvgPrice())
	return nil
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Filters []struct {
			FilterType string `json:"filterType"`
			TickSize   string `json:"tickSize"`
			StepSize   string `json:"stepSize"`
		} `json:"filters"`
	} `json:"symbols"`
}

// FetchAndSetPrecision pulls exchangeInfo for the symbol and stores both
// precisions atomically. Failure here means the symbol is untradable.
func (e *Executor) FetchAndSetPrecision(ctx context.Context, symbol string) error {
	params := Params{}.Add("symbol", symbol)
	status, body, err := e.client.Do(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", params, false)
	if err != nil {
		return errors.Wrap(err, "fetch exchangeInfo")
	}
	if status != http.StatusOK {
		return errors.Errorf("fetch exchangeInfo: HTTP %d %s", status, body)
	}

	var resp exchangeInfoResponse
	if err := sonic.ConfigFastest.Unmarshal(body, &resp); err != nil {
		return errors.Wrap(err, "decode exchangeInfo response")
	}

	for _, entry := range resp.Symbols {
		if entry.Symbol != symbol {
			continue
		}
		pricePrec, qtyPrec := int32(0), int32(0)
		for _, filter := range entry.Filters {
			switch filter.FilterType {
			case "PRICE_FILTER":
				pricePrec = PrecisionFromStep(filter.TickSize)
			case "LOT_SIZE":
				qtyPrec = PrecisionFromStep(filter.StepSize)
			}
		}
		e.account.SetPrecision(pricePrec, qtyPrec)
		logs.Infof("%s precision: price=%d quantity=%d", symbol, pricePrec, qtyPrec)
		return nil
	}
	return errors.Errorf("symbol %s not in exchangeInfo", symbol)
}

// SetupTrading forces one-way position mode and the configured leverage.
// Both are best-effort: the exchange rejects the mode call when it is
// already set, which is fine.
func (e *Executor) SetupTrading(ctx context.Context, symbol string, leverage int) {
	params := Params{}.Add("dualSidePosition", "false")
	if status, body, err := e.client.Do(ctx, http.MethodPost, "/fapi/v1/positionSide/dual", params, true); err != nil {
		logs.Warnf("set one-way position mode, err: %+v", err)
	} else if status != http.StatusOK {
		logs.Warnf("set one-way position mode: HTTP %d %s", status, body)
	}

	params = Params{}.
		Add("symbol", symbol).
		Add("leverage", strconv.Itoa(leverage))
	if status, body, err := e.client.Do(ctx, http.MethodPost, "/fapi/v1/leverage", params, true); err != nil {
		logs.Warnf("set leverage, err: %+v", err)
	} else if status != http.StatusOK {
		logs.Warnf("set leverage: HTTP %d %s", status, body)
	}
}

func (e *Executor) baseEvent(cmd shm.CommandFrame, eventType int32) shm.OrderEventFrame {
	var event shm.OrderEventFrame
	event.EventType = eventType
	event.Side = cmd.Side
	event.TriggerMs = cmd.TriggerMs
	event.TimestampNs = clock.NowNs()
	event.ClientOrderID = cmd.ClientOrderID
	event.ParentOrderID = cmd.ParentOrderID
	return event
}

func (e *Executor) emitExchangeReject(cmd shm.CommandFrame, body []byte) {
	apiErr := decodeAPIError(body)
	event := e.baseEvent(cmd, shm.EvtRejected)
	event.ErrorCode = apiErr.Code
	event.SetErrorMsg(apiErr.Msg)
	event.RemainingQty = cmd.Quantity
	e.submit(&event)
}

func (e *Executor) emitTransportReject(cmd shm.CommandFrame, cause error) {
	logs.Errorf("order transport failure, err: %+v", cause)
	event := e.baseEvent(cmd, shm.EvtRejected)
	event.ErrorCode = -1
	event.SetErrorMsg(cause.Error())
	event.RemainingQty = cmd.Quantity
	e.submit(&event)
}

func (e *Executor) submit(event *shm.OrderEventFrame) {
	if err := e.events.Submit(event); err != nil {
		logs.Errorf("submit order event, err: %+v", err)
	}
}

func (e *Executor) formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', int(e.account.PricePrecision()), 64)
}

func (e *Executor) formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', int(e.account.QuantityPrecision()), 64)
}

func statusToEvent(status string) int32 {
	switch status {
	case "FILLED":
		return shm.EvtFullFill
	case "PARTIALLY_FILLED":
		return shm.EvtPartialFill
	case "CANCELED", "EXPIRED":
		return shm.EvtCanceled
	case "REJECTED":
		return shm.EvtRejected
	default:
		return shm.EvtSubmitted
	}
}

func sideName(side int32) string {
	if side < 0 {
		return "SELL"
	}
	return "BUY"
}

func tifName(tif int32) string {
	switch tif {
	case shm.TifIOC:
		return "IOC"
	case shm.TifFOK:
		return "FOK"
	default:
		return "GTC"
	}
}

func timestampNs(updateTimeMs uint64) uint64 {
	if updateTimeMs == 0 {
		return clock.NowNs()
	}
	return updateTimeMs * 1_000_000
}

func clampQty(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func toFloat(d decimal.Decimal) float64 {
	v, err := strconv.ParseFloat(d.String(), 64)
	if err != nil {
		return 0
	}
	return v
}
