// Package logger builds *slog.Logger instances for planguard services.
//
// New wraps slog's JSON or text handler with LogHandlerDecorator, which runs
// registered ContextExtractor callbacks on every record so request scoped
// values such as a request id end up in the output without being passed
// around explicitly.
//
// Attribute helpers (Subject, Action, Tier, Reason, Error and friends) keep
// key names consistent across packages.
//
// # Usage
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "planguard"),
//		logger.WithLevelName(cfg.LogLevel),
//	)
//	log.InfoContext(ctx, "quota denied",
//		logger.Subject(subject),
//		logger.Action(action),
//		logger.Reason(reason),
//	)
//
// Libraries in this module default to Discard when no logger is supplied.
package logger
