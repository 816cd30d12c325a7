package notify

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu      sync.Mutex
	message string
	params  types.Params
	errs    []error
	block   chan struct{}
}

func (r *recordingSender) Send(message string, params *types.Params) []error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.message = message
	r.params = *params
	return r.errs
}

func newTestEmail(sender *recordingSender, dialed *string) *Email {
	e := NewEmail(EmailOptions{
		Host:        "smtp.example.com",
		Port:        587,
		User:        "mailer",
		Pass:        "p@ss",
		From:        "noreply@example.com",
		ProductName: "AlekosTrader",
		Timeout:     200 * time.Millisecond,
	}, zerolog.Nop())
	e.dial = func(rawURL string) (messageSender, error) {
		if dialed != nil {
			*dialed = rawURL
		}
		return sender, nil
	}
	return e
}

func notification() Notification {
	expires := time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)
	return Notification{
		Email:      "buyer@example.com",
		Name:       "Ada",
		LicenseKey: "ABCD-EFGH-JKLM-NPQR",
		Tier:       "pro",
		ExpiresAt:  &expires,
		OrderID:    "ORDER-1",
	}
}

func TestEmail_Send(t *testing.T) {
	sender := &recordingSender{}
	var dialed string
	e := newTestEmail(sender, &dialed)

	res := e.Send(context.Background(), notification())
	assert.True(t, res.Delivered)
	assert.NotEmpty(t, res.Reference)

	assert.Contains(t, sender.message, "ABCD-EFGH-JKLM-NPQR")
	assert.Contains(t, sender.message, "Hello Ada")
	assert.Contains(t, sender.message, "1 March 2027")
	assert.Equal(t, "Your AlekosTrader Pro License - Order ORDER-1", sender.params["title"])

	u, err := url.Parse(dialed)
	require.NoError(t, err)
	assert.Equal(t, "smtp", u.Scheme)
	assert.Equal(t, "smtp.example.com:587", u.Host)
	assert.Equal(t, "buyer@example.com", u.Query().Get("to"))
	assert.Equal(t, "noreply@example.com", u.Query().Get("from"))
	pass, _ := u.User.Password()
	assert.Equal(t, "p@ss", pass)
}

func TestEmail_SendFailureIsReportedNotReturned(t *testing.T) {
	sender := &recordingSender{errs: []error{errors.New("550 mailbox unavailable")}}
	e := newTestEmail(sender, nil)

	res := e.Send(context.Background(), notification())
	assert.False(t, res.Delivered)
}

func TestEmail_SendTimesOut(t *testing.T) {
	sender := &recordingSender{block: make(chan struct{})}
	defer close(sender.block)
	e := newTestEmail(sender, nil)

	start := time.Now()
	res := e.Send(context.Background(), notification())
	assert.False(t, res.Delivered)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEmail_NoRecipient(t *testing.T) {
	e := newTestEmail(&recordingSender{}, nil)
	n := notification()
	n.Email = ""
	assert.False(t, e.Send(context.Background(), n).Delivered)
}

func TestEmail_RenderWithoutExpiryOrName(t *testing.T) {
	e := newTestEmail(&recordingSender{}, nil)
	n := notification()
	n.ExpiresAt = nil
	n.Name = ""

	body, err := e.Render(n)
	require.NoError(t, err)
	assert.Contains(t, body, "Hello there")
	assert.NotContains(t, body, "Valid until")
}

func TestNoop(t *testing.T) {
	res := NewNoop(zerolog.Nop()).Send(context.Background(), notification())
	assert.False(t, res.Delivered)
	assert.Equal(t, "not_configured", res.Reference)
}
