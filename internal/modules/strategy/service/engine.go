package service

import (
	"context"
	"strings"
	"time"

	"digit_bot/internal/errs"
	"digit_bot/internal/models"
	"digit_bot/internal/modules/config"
	exchange "digit_bot/internal/modules/exchange/service"
	ticks "digit_bot/internal/modules/ticks/service"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrPositionOpen   = errors.New("position already open")
	ErrRunActive      = errors.New("run is active")
	ErrNoRun          = errors.New("no armed run")
	ErrNoAccount      = errors.New("no active account")
	ErrUnknownAccount = errors.New("unknown account")
	ErrEngineStopped  = errors.New("engine loop stopped")
)

// Exchange то, что движку нужно от сессии.
type Exchange interface {
	Start(ctx context.Context, account models.Account) error
	Stop(ctx context.Context) error
	Subscribe(ctx context.Context, symbol string) error
	Unsubscribe(ctx context.Context, symbol string) error
	Send(ctx context.Context, req exchange.Request) (*exchange.Frame, error)
	Inbound() <-chan exchange.Inbound
	State() models.SessionState
	Subscribed() []string
}

type Emitter interface {
	Emit(ev models.TradingEvent)
}

type Store interface {
	Load(ctx context.Context) (models.PersistedState, error)
	Save(ctx context.Context, st models.PersistedState) error
}

// Snapshot состояние движка для наблюдателей (health, CLI).
type Snapshot struct {
	State            RunState
	Session          models.SessionState
	RunID            string
	Account          string
	Settings         models.StrategySettings
	Stake            float64
	CumulativeProfit float64
	Trades           int
	Wins             int
	Losses           int
	Contract         *models.Contract
	Digits           models.DigitStats
}

// run один торговый прогон от StartRun до остановки.
type run struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	settings models.StrategySettings
	trigger  Trigger
	stake    *Martingale

	cumulative decimal.Decimal
	trades     int
	wins       int
	losses     int
	attempt    int

	uncertain      bool
	buyAt          time.Time
	lastContractID int64                   // последний рассчитанный, чтобы не засчитать дважды
	early          []exchange.OpenContract // апдейты, пришедшие раньше ответа на buy
}

func (r *run) matches(symbol, contractType string) bool {
	return strings.EqualFold(symbol, r.settings.Symbol) &&
		strings.EqualFold(contractType, string(r.settings.ContractType))
}

// Engine стратегия и риск. Всё состояние принадлежит горутине Run:
// входящие кадры, результаты блокирующих вызовов и команды обрабатываются
// по одному. Блокирующий I/O идёт в отдельных горутинах и возвращается
// в цикл через results. События в шину шлёт только цикл.
type Engine struct {
	log   *zap.Logger
	ex    Exchange
	bus   Emitter
	store Store
	pipe  *ticks.Pipeline

	warmupCount int
	autoStart   bool

	cmds    chan func(ctx context.Context)
	results chan func()
	done    chan struct{}
	loopCtx context.Context

	// ниже только из цикла
	state     RunState
	starting  bool
	settings  models.StrategySettings
	persisted models.PersistedState
	run       *run
	contract  *models.Contract
}

func NewEngine(
	cfg *config.Config,
	log *zap.Logger,
	ex *exchange.Session,
	bus Emitter,
	store Store,
	pipe *ticks.Pipeline,
) *Engine {
	e := New(log, ex, bus, store, pipe)
	e.settings = cfg.Engine.Settings
	e.warmupCount = cfg.Ticks.WarmupCount
	e.autoStart = cfg.Engine.AutoStart
	return e
}

func New(log *zap.Logger, ex Exchange, bus Emitter, store Store, pipe *ticks.Pipeline) *Engine {
	return &Engine{
		log:      log.Named("engine"),
		ex:       ex,
		bus:      bus,
		store:    store,
		pipe:     pipe,
		settings: models.DefaultStrategySettings(),
		cmds:     make(chan func(ctx context.Context)),
		results:  make(chan func(), 64),
		done:     make(chan struct{}),
	}
}

// Load читает сохранённые счета и настройки. Вызывается до Run.
func (e *Engine) Load(ctx context.Context) error {
	st, err := e.store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load persisted state")
	}
	e.persisted = st
	if st.Settings.Validate() == nil {
		e.settings = st.Settings
	}
	e.log.Info("state loaded",
		zap.Int("accounts", len(st.Accounts)),
		zap.String("active", st.ActiveLoginID),
		zap.String("symbol", e.settings.Symbol),
	)
	return nil
}

// AutoStart по конфигу.
func (e *Engine) AutoStart() bool { return e.autoStart }

// Run цикл движка. Возвращается при отмене ctx.
func (e *Engine) Run(ctx context.Context) error {
	e.loopCtx = ctx
	defer close(e.done)
	e.log.Info("engine loop started")

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			e.log.Info("engine loop stopped")
			return ctx.Err()
		case in := <-e.ex.Inbound():
			e.onInbound(in)
		case apply := <-e.results:
			apply()
		case cmd := <-e.cmds:
			cmd(ctx)
		}
	}
}

// Done закрывается после выхода из Run.
func (e *Engine) Done() <-chan struct{} { return e.done }

// ===== команды =====

// do выполняет fn в цикле и ждёт результат.
func (e *Engine) do(ctx context.Context, fn func(ctx context.Context) error) error {
	errc := make(chan error, 1)
	select {
	case e.cmds <- func(lctx context.Context) { errc <- fn(lctx) }:
	case <-e.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawn блокирующая работа вне цикла; возвращённое замыкание применяется в цикле.
func (e *Engine) spawn(ctx context.Context, work func(ctx context.Context) func()) {
	go func() {
		apply := work(ctx)
		if apply == nil {
			return
		}
		select {
		case e.results <- apply:
		case <-e.done:
		}
	}()
}

// StartRun запускает прогон с текущими настройками и активным счётом.
func (e *Engine) StartRun(ctx context.Context) (string, error) {
	var (
		settings models.StrategySettings
		account  models.Account
	)
	err := e.do(ctx, func(context.Context) error {
		if e.starting || e.state.Active() {
			return ErrRunActive
		}
		if e.contract != nil && !e.contract.Terminal() {
			return ErrPositionOpen
		}
		acc, ok := e.persisted.ActiveAccount()
		if !ok {
			return ErrNoAccount
		}
		if err := e.settings.Validate(); err != nil {
			return errors.Wrap(err, "settings")
		}
		e.starting = true
		settings, account = e.settings, acc
		return nil
	})
	if err != nil {
		return "", err
	}

	prices, pipSize, err := e.prepare(ctx, settings, account)
	if err != nil {
		_ = e.do(context.Background(), func(context.Context) error {
			e.starting = false
			e.emitError(err)
			return nil
		})
		return "", err
	}

	runID := uuid.NewString()
	// starting нужно сбросить в любом случае, поэтому без ctx вызывающего
	err = e.do(context.Background(), func(lctx context.Context) error {
		e.starting = false
		if len(prices) > 0 {
			// история с биржи уже содержит тики, пришедшие во время подписки
			e.pipe.Reset(settings.Symbol)
			n := e.pipe.Warmup(settings.Symbol, prices, pipSize)
			e.log.Info("digit history warmed up", zap.String("symbol", settings.Symbol), zap.Int("prices", n))
		}
		return e.beginRun(lctx, runID, settings)
	})
	if err != nil {
		return "", err
	}
	return runID, nil
}

// prepare сессия, подписка, история. Вне цикла.
func (e *Engine) prepare(ctx context.Context, s models.StrategySettings, acc models.Account) ([]float64, int, error) {
	if e.ex.State() == models.SessionDisconnected {
		if err := e.ex.Start(ctx, acc); err != nil {
			return nil, 0, err
		}
		e.spawn(e.loopCtx, e.subscribeBalance)
	}
	if err := e.ex.Subscribe(ctx, s.Symbol); err != nil {
		return nil, 0, err
	}
	if e.warmupCount <= 0 {
		return nil, 0, nil
	}
	f, err := e.ex.Send(ctx, exchange.TicksHistory(s.Symbol, e.warmupCount))
	if err != nil {
		// без прогрева тоже можно торговать
		e.log.Warn("ticks_history failed", zap.String("symbol", s.Symbol), zap.Error(err))
		return nil, 0, nil
	}
	var h exchange.TicksHistoryResponse
	if err := f.Decode(&h); err != nil {
		e.log.Warn("ticks_history decode", zap.Error(err))
		return nil, 0, nil
	}
	return h.History.Prices, h.PipSize, nil
}

func (e *Engine) beginRun(ctx context.Context, id string, s models.StrategySettings) error {
	trigger, err := NewTrigger(s)
	if err != nil {
		return err
	}
	rctx, cancel := context.WithCancel(ctx)
	e.run = &run{
		id:       id,
		ctx:      rctx,
		cancel:   cancel,
		settings: s,
		trigger:  trigger,
		stake:    NewMartingale(s.EntryValue, s.MartingaleFactor, s.MaxStake),
	}
	e.state = StateArmed
	if entry := e.run.stake.Current(); entry != s.EntryValue {
		e.emitError(errs.New(errs.KindStakeRounded, "entry stake rounded from %v to %.2f", s.EntryValue, entry))
	}
	e.log.Info("run started",
		zap.String("run_id", id),
		zap.String("symbol", s.Symbol),
		zap.String("contract", string(s.ContractType)),
		zap.Float64("entry", s.EntryValue),
	)
	e.emit(models.EventBotStarted, e.runPayload(""))
	return nil
}

// StopRun останавливает прогон. Запрос покупки в полёте бросается,
// символы отписываются.
func (e *Engine) StopRun(ctx context.Context) error {
	return e.do(ctx, func(lctx context.Context) error {
		if !e.state.Active() {
			return ErrNoRun
		}
		e.stopRun(lctx, "stopped by user")
		return nil
	})
}

// BuyNow ручная покупка по текущей ставке. Пока есть позиция, отказ.
func (e *Engine) BuyNow(ctx context.Context) error {
	return e.do(ctx, func(context.Context) error {
		switch e.state {
		case StatePendingPurchase, StateOpen:
			return ErrPositionOpen
		case StateArmed:
			digit, _ := e.pipe.Last(e.run.settings.Symbol)
			e.placeBuy(digit)
			return nil
		}
		return ErrNoRun
	})
}

// Reconfigure новые настройки между прогонами.
func (e *Engine) Reconfigure(ctx context.Context, s models.StrategySettings) error {
	if err := s.Validate(); err != nil {
		return errs.Wrap(errs.KindInternal, err, "invalid settings")
	}
	if _, err := NewTrigger(s); err != nil {
		return err
	}
	var st models.PersistedState
	err := e.do(ctx, func(context.Context) error {
		if e.starting || e.state.Active() {
			return ErrRunActive
		}
		e.settings = s
		e.persisted.Settings = s
		st = e.persisted
		return nil
	})
	if err != nil {
		return err
	}
	return e.store.Save(ctx, st)
}

// SwitchAccount переключение на другой сохранённый счёт: активный прогон
// останавливается, сессия пересоздаётся.
func (e *Engine) SwitchAccount(ctx context.Context, loginID string) error {
	var (
		prev    string
		account models.Account
		st      models.PersistedState
	)
	err := e.do(ctx, func(lctx context.Context) error {
		if e.starting {
			return ErrRunActive
		}
		acc, ok := models.FindAccount(e.persisted.Accounts, loginID)
		if !ok {
			return errors.Wrap(ErrUnknownAccount, loginID)
		}
		if e.state.Active() {
			e.stopRun(lctx, "account switch")
		}
		prev = e.persisted.ActiveLoginID
		e.persisted.ActiveLoginID = loginID
		account, st = acc, e.persisted
		e.starting = true
		return nil
	})
	if err != nil {
		return err
	}

	startErr := e.restartSession(ctx, account)
	saveErr := e.store.Save(ctx, st)

	_ = e.do(context.Background(), func(context.Context) error {
		e.starting = false
		if startErr != nil {
			e.emitError(startErr)
			return nil
		}
		e.emit(models.EventAccountChanged, models.AccountChangedPayload{Previous: prev, Current: loginID})
		return nil
	})
	if startErr != nil {
		return startErr
	}
	return saveErr
}

func (e *Engine) restartSession(ctx context.Context, acc models.Account) error {
	if err := e.ex.Stop(ctx); err != nil {
		return err
	}
	if err := e.ex.Start(ctx, acc); err != nil {
		return err
	}
	e.spawn(e.loopCtx, e.subscribeBalance)
	return nil
}

// Snapshot копия состояния.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := e.do(ctx, func(context.Context) error {
		snap = Snapshot{
			State:    e.state,
			Session:  e.ex.State(),
			Account:  e.persisted.ActiveLoginID,
			Settings: e.settings,
		}
		if r := e.run; r != nil {
			snap.RunID = r.id
			snap.Settings = r.settings
			snap.Stake = r.stake.Current()
			snap.CumulativeProfit = r.cumulative.InexactFloat64()
			snap.Trades, snap.Wins, snap.Losses = r.trades, r.wins, r.losses
		}
		if e.contract != nil {
			c := *e.contract
			snap.Contract = &c
		}
		snap.Digits, _ = e.pipe.Stats(snap.Settings.Symbol)
		return nil
	})
	return snap, err
}

// ===== входящие =====

func (e *Engine) onInbound(in exchange.Inbound) {
	switch in.Kind {
	case exchange.InboundAuthorized:
		e.persisted.UpsertAccount(mergeAccount(e.persisted, in.Account))
		e.emit(models.EventAuthorized, models.AuthorizedPayload{Account: in.Account})
	case exchange.InboundDisconnected:
		e.emitError(in.Err)
		if errs.Is(in.Err, errs.KindAuth) && e.run != nil && e.state.Active() {
			// сессия больше не переподключится, без остановки прогон висел бы Armed
			e.stopRun(e.loopCtx, "authorization lost")
		}
	case exchange.InboundReconnected:
		e.afterReconnect()
	case exchange.InboundFrame:
		e.onFrame(in.Frame)
	}
}

func (e *Engine) onFrame(f *exchange.Frame) {
	if f.Error != nil {
		e.emitError(f.Err())
		return
	}
	switch f.MsgType {
	case "tick":
		var t exchange.TickResponse
		if err := f.Decode(&t); err != nil {
			e.log.Warn("bad tick", zap.Error(err))
			return
		}
		e.onTick(t)
	case "balance":
		var b exchange.BalanceResponse
		if err := f.Decode(&b); err != nil {
			e.log.Warn("bad balance", zap.Error(err))
			return
		}
		e.emit(models.EventBalanceUpdate, models.BalancePayload{
			LoginID:  b.Balance.LoginID,
			Currency: b.Balance.Currency,
			Balance:  b.Balance.Balance,
		})
	case "proposal_open_contract":
		var oc exchange.OpenContractResponse
		if err := f.Decode(&oc); err != nil {
			e.log.Warn("bad contract update", zap.Error(err))
			return
		}
		e.onContract(oc.ProposalOpenContract)
	default:
		e.log.Debug("unhandled frame", zap.String("msg_type", f.MsgType))
	}
}

func (e *Engine) onTick(t exchange.TickResponse) {
	tick := e.pipe.OnTick(t.Tick.Symbol, t.Tick.Quote, t.Tick.Epoch, t.Tick.PipSize)
	e.emit(models.EventTick, models.TickPayload{Tick: tick})

	if e.state != StateArmed || tick.Symbol != e.run.settings.Symbol {
		return
	}
	if e.run.trigger(tick.Digit) {
		e.placeBuy(tick.Digit)
	}
}

// ===== покупка =====

func (e *Engine) placeBuy(digit int) {
	r := e.run
	s := r.settings
	stake := r.stake.Current()

	r.attempt++
	r.buyAt = time.Now()
	e.state = StatePendingPurchase
	e.contract = &models.Contract{
		ContractType: s.ContractType,
		Symbol:       s.Symbol,
		Stake:        stake,
		Prediction:   s.Prediction,
		Status:       models.ContractPending,
	}
	e.emit(models.EventOperationStarted, models.OperationPayload{
		RunID:   r.id,
		Attempt: r.attempt,
		Stake:   stake,
		Digit:   digit,
	})

	req := exchange.Buy(exchange.BuyParams{
		Symbol:       s.Symbol,
		ContractType: s.ContractType,
		Stake:        stake,
		Prediction:   s.Prediction,
		Currency:     s.Currency,
		Duration:     s.Duration,
		DurationUnit: s.DurationUnit,
	})
	runID := r.id
	e.spawn(r.ctx, func(ctx context.Context) func() {
		f, err := e.ex.Send(ctx, req)
		return func() { e.onBuyResult(runID, f, err) }
	})
}

func (e *Engine) onBuyResult(runID string, f *exchange.Frame, err error) {
	r := e.run
	if r == nil || r.id != runID || e.state != StatePendingPurchase || r.uncertain {
		e.log.Debug("stale buy result", zap.String("run_id", runID))
		return
	}

	if err != nil {
		switch errs.KindOf(err) {
		case errs.KindAPI:
			// биржа отказала: ставка не тратится, последовательность не двигается
			e.emitError(errs.WithCode(errs.KindOrderRejected, errs.CodeOf(err), err.Error()))
			e.contract = nil
			r.early = nil
			e.state = StateArmed
		default:
			e.emitError(errs.Wrap(errs.KindOrderUncertain, err, "buy outcome unknown, reconciling"))
			r.uncertain = true
			if !e.adoptEarly() {
				e.reconcile()
			}
		}
		return
	}

	var b exchange.BuyResponse
	if err := f.Decode(&b); err != nil {
		e.emitError(errs.Wrap(errs.KindOrderUncertain, err, "decode buy"))
		r.uncertain = true
		if !e.adoptEarly() {
			e.reconcile()
		}
		return
	}

	e.openContract(b.Buy.ContractID, b.Buy.BuyPrice, b.Buy.Payout)
	for _, oc := range r.early {
		e.onContract(oc)
	}
	r.early = nil
}

func (e *Engine) openContract(id int64, buyPrice, payout float64) {
	e.contract.ID = id
	e.contract.BuyPrice = buyPrice
	e.contract.Payout = payout
	e.contract.Status = models.ContractOpen
	e.state = StateOpen
	e.log.Info("contract purchased",
		zap.Int64("contract_id", id),
		zap.Float64("stake", e.contract.Stake),
		zap.Float64("payout", payout),
	)
	e.emit(models.EventContractPurchased, models.ContractPayload{Contract: *e.contract})
}

// adoptEarly покупка без ответа, но апдейт по нашему контракту уже пришёл.
// Контракт принимается и, если продан, сразу рассчитывается.
func (e *Engine) adoptEarly() bool {
	r := e.run
	for _, oc := range r.early {
		if oc.ContractID == 0 || oc.ContractID == r.lastContractID || !r.matches(oc.Underlying, oc.ContractType) {
			continue
		}
		early := r.early
		r.uncertain = false
		r.early = nil
		e.log.Info("adopted contract from early update", zap.Int64("contract_id", oc.ContractID))
		e.openContract(oc.ContractID, oc.BuyPrice, oc.Payout)
		for _, u := range early {
			e.onContract(u)
		}
		if e.state == StateOpen {
			e.watchContract(oc.ContractID)
		}
		return true
	}
	return false
}

// reconcile ищет в portfolio контракт, чья покупка осталась без ответа.
func (e *Engine) reconcile() {
	r := e.run
	if !e.ex.State().Live() {
		// дождёмся переподключения
		return
	}
	runID := r.id
	e.spawn(r.ctx, func(ctx context.Context) func() {
		f, err := e.ex.Send(ctx, exchange.Portfolio())
		return func() { e.onPortfolio(runID, f, err) }
	})
}

func (e *Engine) onPortfolio(runID string, f *exchange.Frame, err error) {
	r := e.run
	if r == nil || r.id != runID || e.state != StatePendingPurchase || !r.uncertain {
		return
	}
	if err != nil {
		if errs.Is(err, errs.KindTransport) {
			return // повторим после переподключения
		}
		e.emitError(errs.Wrap(errs.KindOrderUncertain, err, "portfolio"))
		e.rearm()
		return
	}

	var p exchange.PortfolioResponse
	if err := f.Decode(&p); err != nil {
		e.emitError(errs.Wrap(errs.KindOrderUncertain, err, "decode portfolio"))
		e.rearm()
		return
	}
	for _, c := range p.Portfolio.Contracts {
		if !r.matches(c.Symbol, c.ContractType) {
			continue
		}
		r.uncertain = false
		e.log.Info("adopted contract after uncertain buy", zap.Int64("contract_id", c.ContractID))
		e.openContract(c.ContractID, c.BuyPrice, c.Payout)
		for _, oc := range r.early {
			e.onContract(oc)
		}
		r.early = nil
		if e.state == StateOpen {
			e.watchContract(c.ContractID)
		}
		return
	}
	if e.adoptEarly() {
		return
	}
	// открытых нет: контракт мог успеть закрыться, смотрим проданные
	e.spawn(r.ctx, func(ctx context.Context) func() {
		f, err := e.ex.Send(ctx, exchange.ProfitTable(profitTableDepth))
		return func() { e.onProfitTable(runID, f, err) }
	})
}

const (
	profitTableDepth = 10
	purchaseSkew     = 2 * time.Second
)

// onProfitTable последняя проверка: проданный контракт нашей стратегии,
// купленный не раньше отправки buy. Нет такого, значит покупки не было.
func (e *Engine) onProfitTable(runID string, f *exchange.Frame, err error) {
	r := e.run
	if r == nil || r.id != runID || e.state != StatePendingPurchase || !r.uncertain {
		return
	}
	if err != nil {
		if errs.Is(err, errs.KindTransport) {
			return
		}
		e.emitError(errs.Wrap(errs.KindOrderUncertain, err, "profit_table"))
		e.rearm()
		return
	}

	var pt exchange.ProfitTableResponse
	if err := f.Decode(&pt); err != nil {
		e.emitError(errs.Wrap(errs.KindOrderUncertain, err, "decode profit_table"))
		e.rearm()
		return
	}
	prefix := strings.ToUpper(string(r.settings.ContractType) + "_" + r.settings.Symbol + "_")
	since := r.buyAt.Add(-purchaseSkew).Unix()
	for _, t := range pt.ProfitTable.Transactions {
		if t.ContractID == r.lastContractID || t.PurchaseTime < since ||
			!strings.HasPrefix(strings.ToUpper(t.Shortcode), prefix) {
			continue
		}
		r.uncertain = false
		r.early = nil
		e.log.Info("adopted sold contract after uncertain buy", zap.Int64("contract_id", t.ContractID))
		e.openContract(t.ContractID, t.BuyPrice, t.Payout)
		profit := decimal.NewFromFloat(t.SellPrice).Sub(decimal.NewFromFloat(t.BuyPrice))
		e.settle(exchange.OpenContract{
			ContractID: t.ContractID,
			BuyPrice:   t.BuyPrice,
			SellPrice:  t.SellPrice,
			Payout:     t.Payout,
			Profit:     profit.InexactFloat64(),
			IsSold:     1,
			Status:     "sold",
		})
		return
	}
	e.log.Info("no contract after uncertain buy, rearm")
	e.rearm()
}

// rearm покупки не было: та же ставка, снова ждём сигнал.
func (e *Engine) rearm() {
	e.run.uncertain = false
	e.run.early = nil
	e.contract = nil
	e.state = StateArmed
}

func (e *Engine) watchContract(id int64) {
	e.spawn(e.loopCtx, func(ctx context.Context) func() {
		if _, err := e.ex.Send(ctx, exchange.WatchContract(id)); err != nil {
			return func() { e.emitError(err) }
		}
		return nil
	})
}

// ===== контракт =====

func (e *Engine) onContract(oc exchange.OpenContract) {
	if e.state == StatePendingPurchase {
		e.run.early = append(e.run.early, oc)
		return
	}
	c := e.contract
	if c == nil || c.ID != oc.ContractID || c.Terminal() {
		return
	}

	c.BuyPrice = nonZero(oc.BuyPrice, c.BuyPrice)
	c.Payout = nonZero(oc.Payout, c.Payout)
	c.Profit = oc.Profit

	if oc.IsSold == 0 && oc.Status != "won" && oc.Status != "lost" {
		e.emit(models.EventContractUpdate, models.ContractPayload{Contract: *c})
		return
	}
	e.settle(oc)
}

func (e *Engine) settle(oc exchange.OpenContract) {
	c := e.contract
	stake := decimal.NewFromFloat(c.Stake)

	var profit decimal.Decimal
	switch oc.Status {
	case "won":
		profit = decimal.NewFromFloat(c.Payout).Sub(stake)
	case "lost":
		profit = stake.Neg()
	default:
		profit = decimal.NewFromFloat(oc.Profit)
	}
	won := profit.IsPositive()

	c.Profit = profit.Round(2).InexactFloat64()
	if won {
		c.Status = models.ContractWon
	} else {
		c.Status = models.ContractLost
	}
	e.log.Info("contract settled",
		zap.Int64("contract_id", c.ID),
		zap.String("status", string(c.Status)),
		zap.Float64("profit", c.Profit),
	)

	if e.state != StateOpen {
		// прогон уже остановлен: только сообщаем итог
		e.emit(models.EventContractFinished, models.ContractPayload{Contract: *c})
		return
	}

	r := e.run
	r.lastContractID = c.ID
	e.state = StateSettled
	r.cumulative = r.cumulative.Add(profit)
	r.trades++
	if won {
		r.wins++
	} else {
		r.losses++
	}
	e.emit(models.EventContractFinished, models.ContractPayload{Contract: *c})

	step := r.stake.Next(won)
	if step.Rounded {
		e.emitError(errs.New(errs.KindStakeRounded, "stake rounded from %s to %.2f", step.Raw.String(), step.Stake))
	}
	if step.Capped {
		e.emitError(errs.New(errs.KindStakeCapped, "stake capped at %.2f", step.Stake))
	}

	s := r.settings
	switch {
	case s.ProfitTarget > 0 && r.cumulative.GreaterThanOrEqual(decimal.NewFromFloat(s.ProfitTarget)):
		e.stopRun(e.loopCtx, "profit target reached")
	case s.LossLimit > 0 && r.cumulative.Neg().GreaterThanOrEqual(decimal.NewFromFloat(s.LossLimit)):
		e.stopRun(e.loopCtx, "loss limit reached")
	default:
		e.state = StateArmed
	}
}

// ===== остановка и переподключение =====

func (e *Engine) stopRun(ctx context.Context, reason string) {
	r := e.run
	r.cancel()
	if e.state == StatePendingPurchase {
		// покупка брошена, её результат уже не придёт
		e.contract = nil
	}
	e.state = StateStopped
	e.log.Info("run stopped",
		zap.String("run_id", r.id),
		zap.String("reason", reason),
		zap.String("profit", r.cumulative.StringFixed(2)),
		zap.Int("trades", r.trades),
	)
	e.emit(models.EventBotStopped, e.runPayload(reason))

	symbols := e.ex.Subscribed()
	e.spawn(ctx, func(ctx context.Context) func() {
		for _, sym := range symbols {
			if err := e.ex.Unsubscribe(ctx, sym); err != nil {
				return func() { e.emitError(err) }
			}
		}
		return nil
	})
}

func (e *Engine) afterReconnect() {
	e.spawn(e.loopCtx, e.subscribeBalance)
	if e.contract != nil && e.contract.Status == models.ContractOpen {
		e.watchContract(e.contract.ID)
	}
	if e.state == StatePendingPurchase && e.run.uncertain {
		e.reconcile()
	}
}

func (e *Engine) subscribeBalance(ctx context.Context) func() {
	if _, err := e.ex.Send(ctx, exchange.SubscribeBalance()); err != nil && errs.CodeOf(err) != "AlreadySubscribed" {
		return func() { e.emitError(err) }
	}
	return nil
}

func (e *Engine) shutdown() {
	if e.run != nil && e.state.Active() {
		e.run.cancel()
		e.state = StateStopped
		e.emit(models.EventBotStopped, e.runPayload("shutdown"))
	}
}

// ===== события =====

func (e *Engine) emit(kind models.EventKind, payload any) {
	e.bus.Emit(models.NewEvent(kind, payload))
}

func (e *Engine) emitError(err error) {
	if err == nil {
		return
	}
	kind := errs.KindOf(err)
	if kind.Warning() {
		e.log.Warn("engine warning", zap.Error(err))
	} else {
		e.log.Error("engine error", zap.String("kind", string(kind)), zap.Error(err))
	}
	e.emit(models.EventError, models.ErrorPayload{
		Kind:    string(kind),
		Code:    errs.CodeOf(err),
		Message: err.Error(),
	})
}

func (e *Engine) runPayload(reason string) models.RunPayload {
	r := e.run
	return models.RunPayload{
		RunID:            r.id,
		Settings:         r.settings,
		CumulativeProfit: r.cumulative.InexactFloat64(),
		Trades:           r.trades,
		Wins:             r.wins,
		Losses:           r.losses,
		Reason:           reason,
	}
}

// mergeAccount данные авторизации поверх сохранённого счёта (токен остаётся).
func mergeAccount(st models.PersistedState, a models.Account) models.Account {
	if saved, ok := models.FindAccount(st.Accounts, a.LoginID); ok {
		saved.Currency = a.Currency
		saved.Balance = a.Balance
		saved.IsVirtual = a.IsVirtual
		return saved
	}
	return a
}

func nonZero(v, fallback float64) float64 {
	if v != 0 {
		return v
	}
	return fallback
}
