package service

import (
	"strings"

	"digit_bot/internal/models"
	"digit_bot/internal/modules/config"
)

// Pipeline превращает котировки в тики с цифрой и ведёт историю по символам.
// Принадлежит циклу движка, без блокировок.
type Pipeline struct {
	capacity     int
	defaultScale int
	overrides    map[string]int // ключи в нижнем регистре (viper так хранит)

	histories map[string]*History
	lastPrice map[string]float64
}

func NewPipeline(cfg *config.Config) *Pipeline {
	return New(cfg.Ticks.HistorySize, cfg.Ticks.DefaultPipScale, cfg.Ticks.PipScales)
}

func New(capacity, defaultScale int, overrides map[string]int) *Pipeline {
	o := make(map[string]int, len(overrides))
	for k, v := range overrides {
		o[strings.ToLower(k)] = v
	}
	return &Pipeline{
		capacity:     capacity,
		defaultScale: defaultScale,
		overrides:    o,
		histories:    make(map[string]*History),
		lastPrice:    make(map[string]float64),
	}
}

// PipScale конфиг > pip_size из тика > дефолт.
func (p *Pipeline) PipScale(symbol string, tickPipSize int) int {
	if s, ok := p.overrides[strings.ToLower(symbol)]; ok {
		return s
	}
	if tickPipSize > 0 {
		return tickPipSize
	}
	return p.defaultScale
}

// OnTick цифра -> история -> готовый тик для шины.
func (p *Pipeline) OnTick(symbol string, price float64, epoch int64, pipSize int) models.Tick {
	t := models.Tick{
		Symbol: symbol,
		Price:  price,
		Digit:  Digit(price, p.PipScale(symbol, pipSize)),
		Epoch:  epoch,
	}
	p.history(symbol).Push(t.Digit)
	p.lastPrice[symbol] = price
	return t
}

// Warmup засевает историю из ticks_history до старта прогона. Возвращает
// число принятых цен.
func (p *Pipeline) Warmup(symbol string, prices []float64, pipSize int) int {
	scale := p.PipScale(symbol, pipSize)
	h := p.history(symbol)
	for _, price := range prices {
		h.Push(Digit(price, scale))
	}
	if len(prices) > 0 {
		p.lastPrice[symbol] = prices[len(prices)-1]
	}
	return len(prices)
}

// Last свежая цифра символа.
func (p *Pipeline) Last(symbol string) (int, bool) {
	h, ok := p.histories[symbol]
	if !ok {
		return 0, false
	}
	return h.Last()
}

func (p *Pipeline) Stats(symbol string) (models.DigitStats, bool) {
	h, ok := p.histories[symbol]
	if !ok {
		return models.DigitStats{}, false
	}
	return models.DigitStats{
		Symbol:      symbol,
		Capacity:    h.Cap(),
		Digits:      h.Digits(),
		Frequencies: h.Frequencies(),
		Percentages: h.Percentages(),
		LastPrice:   p.lastPrice[symbol],
	}, true
}

func (p *Pipeline) Reset(symbol string) {
	delete(p.histories, symbol)
	delete(p.lastPrice, symbol)
}

func (p *Pipeline) history(symbol string) *History {
	h, ok := p.histories[symbol]
	if !ok {
		h = NewHistory(p.capacity)
		p.histories[symbol] = h
	}
	return h
}
