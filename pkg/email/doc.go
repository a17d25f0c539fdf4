// Package email sends transactional email through a provider-agnostic
// EmailSender and delivers one-time codes through CodeMailer.
//
// Two senders are provided: a Postmark client for production and DevSender,
// which writes every message to a directory for local development. NewSender
// chooses between them based on whether Postmark tokens are configured.
//
//	sender, err := email.NewSender(cfg)
//	mailer := email.NewCodeMailer(sender,
//	    email.WithProductName(cfg.ProductName),
//	    email.WithSendTimeout(cfg.SendTimeout),
//	    email.WithMailerLogger(log),
//	)
//
//	err = mailer.SendCode(ctx, email.CodeMessage{
//	    RequestID: requestID,
//	    To:        "user@example.com",
//	    Code:      "123456",
//	    Purpose:   "login",
//	    ExpiresAt: time.Now().Add(10 * time.Minute),
//	})
//
// SendCode is idempotent per RequestID within the dedup window, never waits
// longer than the send timeout and reports every failure as
// ErrFailedToSendEmail. The message body comes from templates.OneTimeCode.
package email
