// Package logger builds *slog.Logger values with functional options and
// provides attribute helpers that keep key names consistent.
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "accountsec"),
//	    logger.WithLevel(logger.ParseLevel(cfg.LogLevel)),
//	    logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//
//	log.InfoContext(ctx, "two-factor enrolled",
//	    logger.UserID(userID),
//	    logger.Method("totp"),
//	)
//
// The handler is wrapped by LogHandlerDecorator, which runs the registered
// ContextExtractor callbacks on every record.
//
// Attribute helpers return an empty slog.Attr for absent values so they can
// be passed unconditionally. Email masks the address. Secrets, codes and
// recovery codes have no helper and must never be logged; as a backstop the
// handler replaces the value of any attribute keyed code, otp, secret,
// recovery_code, password, token or master_key with Redacted.
package logger
