package vendordict

import "go.uber.org/fx"

var Module = fx.Module("vendor.dictionary",
	fx.Provide(NewHolder),
	fx.Provide(func(h *Holder) Resolver { return h }),
)
