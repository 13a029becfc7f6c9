package service

import (
	"strconv"

	"digit_bot/internal/errs"
	"digit_bot/internal/models"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// Request JSON-запрос к бирже. Ключ-дискриминант (authorize, ticks, buy...) +
// параметры; req_id сессия добавляет сама.
type Request map[string]any

// порядок важен: buy несёт "subscribe", ticks тоже
var requestKinds = []string{
	"authorize", "buy", "proposal_open_contract", "ticks_history", "ticks",
	"balance", "portfolio", "profit_table", "forget_all", "forget", "ping",
}

// MsgType тип запроса по ключу-дискриминанту.
func (r Request) MsgType() string {
	for _, k := range requestKinds {
		if _, ok := r[k]; ok {
			return k
		}
	}
	return "unknown"
}

func Authorize(token string) Request { return Request{"authorize": token} }

func Ping() Request { return Request{"ping": 1} }

func SubscribeTicks(symbol string) Request {
	return Request{"ticks": symbol, "subscribe": 1}
}

func Forget(subscriptionID string) Request { return Request{"forget": subscriptionID} }

func SubscribeBalance() Request { return Request{"balance": 1, "subscribe": 1} }

func Portfolio() Request { return Request{"portfolio": 1} }

func TicksHistory(symbol string, count int) Request {
	return Request{
		"ticks_history": symbol,
		"count":         count,
		"end":           "latest",
		"style":         "ticks",
	}
}

// WatchContract подписка на proposal_open_contract по id контракта.
func WatchContract(contractID int64) Request {
	return Request{"proposal_open_contract": 1, "contract_id": contractID, "subscribe": 1}
}

// ProfitTable последние закрытые контракты, новые первыми.
func ProfitTable(limit int) Request {
	return Request{"profit_table": 1, "description": 1, "limit": limit, "sort": "DESC"}
}

// BuyParams параметры покупки цифрового контракта по ставке.
type BuyParams struct {
	Symbol       string
	ContractType models.ContractType
	Stake        float64
	Prediction   int
	Currency     string
	Duration     int
	DurationUnit string
}

// Buy покупка с subscribe:1, чтобы сразу шёл поток proposal_open_contract.
func Buy(p BuyParams) Request {
	params := map[string]any{
		"amount":        p.Stake,
		"basis":         "stake",
		"contract_type": string(p.ContractType),
		"currency":      p.Currency,
		"duration":      p.Duration,
		"duration_unit": p.DurationUnit,
		"symbol":        p.Symbol,
	}
	if p.ContractType.NeedsBarrier() {
		params["barrier"] = strconv.Itoa(p.Prediction)
	}
	return Request{
		"buy":        1,
		"price":      p.Stake,
		"parameters": params,
		"subscribe":  1,
	}
}

// APIError ошибка из поля error ответа.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Subscription struct {
	ID string `json:"id"`
}

// Frame входящий кадр: общий конверт + сырые байты для типизированного Decode.
type Frame struct {
	MsgType      string        `json:"msg_type"`
	ReqID        int64         `json:"req_id,omitempty"`
	Error        *APIError     `json:"error,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`

	Raw []byte `json:"-"`
}

func DecodeFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := sonic.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	f.Raw = raw
	return &f, nil
}

// Decode разбирает кадр в типизированный ответ.
func (f *Frame) Decode(v any) error {
	if err := sonic.Unmarshal(f.Raw, v); err != nil {
		return errors.Wrapf(err, "decode %s", f.MsgType)
	}
	return nil
}

// Err ошибка биржи как errs.Error{Kind: APIError}.
func (f *Frame) Err() error {
	if f == nil || f.Error == nil {
		return nil
	}
	return errs.WithCode(errs.KindAPI, f.Error.Code, f.Error.Message)
}

func (f *Frame) SubscriptionID() string {
	if f.Subscription == nil {
		return ""
	}
	return f.Subscription.ID
}

func encodeRequest(r Request, reqID int64) ([]byte, error) {
	out := make(map[string]any, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	out["req_id"] = reqID
	b, err := sonic.Marshal(out)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", r.MsgType())
	}
	return b, nil
}

// ===== типизированные ответы =====

type AuthorizeResponse struct {
	Authorize struct {
		LoginID   string  `json:"loginid"`
		Balance   float64 `json:"balance"`
		Currency  string  `json:"currency"`
		IsVirtual int     `json:"is_virtual"`
	} `json:"authorize"`
}

type TickResponse struct {
	Tick struct {
		Symbol  string  `json:"symbol"`
		Quote   float64 `json:"quote"`
		Epoch   int64   `json:"epoch"`
		PipSize int     `json:"pip_size"`
		ID      string  `json:"id"`
	} `json:"tick"`
}

type BalanceResponse struct {
	Balance struct {
		Balance  float64 `json:"balance"`
		Currency string  `json:"currency"`
		LoginID  string  `json:"loginid"`
	} `json:"balance"`
}

type BuyResponse struct {
	Buy struct {
		ContractID    int64   `json:"contract_id"`
		BuyPrice      float64 `json:"buy_price"`
		Payout        float64 `json:"payout"`
		BalanceAfter  float64 `json:"balance_after"`
		TransactionID int64   `json:"transaction_id"`
		Longcode      string  `json:"longcode"`
	} `json:"buy"`
}

type OpenContract struct {
	ContractID   int64   `json:"contract_id"`
	ContractType string  `json:"contract_type"`
	Underlying   string  `json:"underlying"`
	BuyPrice     float64 `json:"buy_price"`
	Payout       float64 `json:"payout"`
	Profit       float64 `json:"profit"`
	SellPrice    float64 `json:"sell_price"`
	IsSold       int     `json:"is_sold"`
	Status       string  `json:"status"` // open | won | lost | sold
}

type OpenContractResponse struct {
	ProposalOpenContract OpenContract `json:"proposal_open_contract"`
}

type PortfolioContract struct {
	ContractID   int64   `json:"contract_id"`
	ContractType string  `json:"contract_type"`
	Symbol       string  `json:"symbol"`
	BuyPrice     float64 `json:"buy_price"`
	Payout       float64 `json:"payout"`
}

type PortfolioResponse struct {
	Portfolio struct {
		Contracts []PortfolioContract `json:"contracts"`
	} `json:"portfolio"`
}

// ProfitTransaction закрытый контракт. Shortcode вида DIGITEVEN_R_100_1.95_1700000000_1T_0_0.
type ProfitTransaction struct {
	ContractID   int64   `json:"contract_id"`
	BuyPrice     float64 `json:"buy_price"`
	SellPrice    float64 `json:"sell_price"`
	Payout       float64 `json:"payout"`
	Shortcode    string  `json:"shortcode"`
	PurchaseTime int64   `json:"purchase_time"`
	SellTime     int64   `json:"sell_time"`
}

type ProfitTableResponse struct {
	ProfitTable struct {
		Count        int                 `json:"count"`
		Transactions []ProfitTransaction `json:"transactions"`
	} `json:"profit_table"`
}

type TicksHistoryResponse struct {
	History struct {
		Prices []float64 `json:"prices"`
		Times  []int64   `json:"times"`
	} `json:"history"`
	PipSize int `json:"pip_size"`
}
