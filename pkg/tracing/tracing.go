package tracing

import (
	"fmt"

	"github.com/opentracing/opentracing-go"
	jCfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"
	"go.uber.org/zap"
)

type Config struct {
	Enabled     bool
	ServiceName string
	Host        string
	Port        int
}

// InitTracer ставит глобальный jaeger-трейсер. При Enabled=false остаётся
// NoopTracer, и спаны сессии ничего не стоят.
func InitTracer(conf Config, log *zap.Logger) (opentracing.Tracer, func(), error) {
	if !conf.Enabled {
		return opentracing.NoopTracer{}, func() {}, nil
	}
	name := conf.ServiceName
	if name == "" {
		name = "digit_bot"
	}

	cfg := &jCfg.Configuration{
		ServiceName: name,
		Sampler: &jCfg.SamplerConfig{
			Type:  "const",
			Param: 1,
		},
		Reporter: &jCfg.ReporterConfig{
			LogSpans:           true,
			LocalAgentHostPort: fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		},
	}

	tracer, closer, err := cfg.NewTracer(
		jCfg.Metrics(metrics.NullFactory),
	)
	if err != nil {
		return nil, nil, err
	}

	opentracing.SetGlobalTracer(tracer)
	log.Info("jaeger tracer initialised", zap.String("agent", cfg.Reporter.LocalAgentHostPort))
	return tracer, func() {
		if err := closer.Close(); err != nil {
			log.Error("close jaeger tracer", zap.Error(err))
		}
	}, nil
}
