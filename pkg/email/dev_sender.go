package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DevSender writes messages to a local outbox directory instead of sending
// them. Each message becomes two files sharing a name: the rendered HTML body
// and a JSON envelope with the addressing fields.
type DevSender struct {
	dir string
	now func() time.Time
}

// NewDevSender returns a sender rooted at dir. The directory is created on
// first send.
func NewDevSender(dir string) EmailSender {
	return &DevSender{dir: dir, now: time.Now}
}

type devEnvelope struct {
	MessageID string `json:"message_id"`
	Timestamp string `json:"timestamp"`
	SendTo    string `json:"send_to"`
	Subject   string `json:"subject"`
	Tag       string `json:"tag,omitempty"`
}

// SendEmail stores params in the outbox.
func (d *DevSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create outbox: %w", ErrFailedToSendEmail, err)
	}

	at := d.now()
	env := devEnvelope{
		MessageID: uuid.NewString(),
		Timestamp: at.Format(time.RFC3339),
		SendTo:    params.SendTo,
		Subject:   params.Subject,
		Tag:       params.Tag,
	}
	meta, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode envelope: %w", ErrFailedToSendEmail, err)
	}

	label := params.Tag
	if label == "" {
		label = params.Subject
	}
	// The id suffix keeps messages sent within the same second apart.
	base := filepath.Join(d.dir, strings.Join([]string{
		at.Format("2006_01_02_150405"), fileLabel(label), env.MessageID[:8],
	}, "_"))

	for ext, data := range map[string][]byte{".html": []byte(params.BodyHTML), ".json": meta} {
		if err := os.WriteFile(base+ext, data, 0o600); err != nil {
			return fmt.Errorf("%w: write %s: %w", ErrFailedToSendEmail, ext, err)
		}
	}
	return nil
}

// fileLabel reduces s to a short lower-case name made of letters, digits,
// dots, dashes and underscores.
func fileLabel(s string) string {
	const maxLen = 64
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if b.Len() == maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "email"
	}
	return b.String()
}
