package config

import "go.uber.org/fx"

// Module регистрирует *Config как fx-провайдер.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
		),
	)
}

// ModuleFrom для cmd с флагом --config.
func ModuleFrom(path string) fx.Option {
	return fx.Module("config",
		fx.Provide(
			func() (*Config, error) {
				if path == "" {
					return NewConfig()
				}
				return Load(path)
			},
		),
	)
}
