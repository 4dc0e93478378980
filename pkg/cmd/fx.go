package cmd

import "go.uber.org/fx"

var Module = fx.Module("cli",
	fx.Provide(
		fx.Annotate(baseline, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(check, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(clean, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(info, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(migrate, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(repair, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(serve, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(start, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(validate, fx.ResultTags(`group:"commands"`)),
	),
	fx.Invoke(Run),
)
