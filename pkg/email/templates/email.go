package templates

import (
	"strconv"
	"time"
)

// CodeEmail is the data for the one-time code message.
type CodeEmail struct {
	ProductName string
	Heading     string
	Code        string
	ExpiresIn   time.Duration
}

// expiresInMinutes rounds to the nearest minute and never shows less than one.
func (d CodeEmail) expiresInMinutes() string {
	return strconv.Itoa(max(1, int(d.ExpiresIn.Round(time.Minute)/time.Minute)))
}
