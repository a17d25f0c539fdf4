package email

import "time"

// Config holds email service configuration.
// Without Postmark tokens the service falls back to DevSender writing to DevOutputDir.
type Config struct {
	PostmarkServerToken  string        `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string        `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string        `env:"SENDER_EMAIL,required"`
	SupportEmail         string        `env:"SUPPORT_EMAIL,required"`
	ProductName          string        `env:"EMAIL_PRODUCT_NAME" envDefault:"AccountSec"`
	SendTimeout          time.Duration `env:"EMAIL_SEND_TIMEOUT" envDefault:"10s"`
	DevOutputDir         string        `env:"EMAIL_DEV_OUTPUT_DIR" envDefault:"./tmp/emails"`
}

// PostmarkEnabled reports whether both Postmark tokens are set.
func (c Config) PostmarkEnabled() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}
