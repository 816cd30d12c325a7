package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/logger"
	"github.com/google/uuid"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type EmailOptions struct {
	Host        string
	Port        int
	User        string
	Pass        string
	From        string
	ProductName string
	Timeout     time.Duration
}

type messageSender interface {
	Send(message string, params *types.Params) []error
}

// Email delivers license keys over SMTP through a shoutrrr router.
type Email struct {
	opts EmailOptions
	log  zerolog.Logger
	body *template.Template
	dial func(rawURL string) (messageSender, error)
}

var licenseBody = template.Must(template.New("license").Parse(`Hello {{.Name}},

Thank you for purchasing {{.Product}} {{.TierTitle}}.

Your license key: {{.LicenseKey}}
Order: {{.OrderID}}
{{- if .ExpiresAt}}
Valid until: {{.ExpiresAt}}
{{- end}}

Enter the key in {{.Product}} on the computer you want to use. The license
locks to the first device it is activated on; contact support to move it.

The {{.Product}} team
`))

func NewEmail(opts EmailOptions, log zerolog.Logger) *Email {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.ProductName == "" {
		opts.ProductName = "AlekosTrader"
	}
	return &Email{
		opts: opts,
		log:  log.With().Str("component", "notify").Logger(),
		body: licenseBody,
		dial: func(rawURL string) (messageSender, error) {
			r, err := router.New(nil, rawURL)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
	}
}

// ServiceURL renders the shoutrrr smtp URL for a single recipient.
func (e *Email) ServiceURL(to string) string {
	u := url.URL{
		Scheme: "smtp",
		Host:   e.opts.Host + ":" + strconv.Itoa(e.opts.Port),
		Path:   "/",
	}
	if e.opts.User != "" {
		u.User = url.UserPassword(e.opts.User, e.opts.Pass)
	}
	q := url.Values{}
	q.Set("from", e.opts.From)
	q.Set("fromname", e.opts.ProductName)
	q.Set("to", to)
	if e.opts.Port == 465 {
		q.Set("encryption", "ImplicitTLS")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (e *Email) Subject(n Notification) string {
	return fmt.Sprintf("Your %s %s License - Order %s", e.opts.ProductName, tierTitle(n.Tier), n.OrderID)
}

func (e *Email) Render(n Notification) (string, error) {
	name := n.Name
	if name == "" {
		name = "there"
	}
	var expires string
	if n.ExpiresAt != nil {
		expires = n.ExpiresAt.UTC().Format("2 January 2006")
	}

	var buf bytes.Buffer
	err := e.body.Execute(&buf, map[string]any{
		"Name":       name,
		"Product":    e.opts.ProductName,
		"TierTitle":  tierTitle(n.Tier),
		"LicenseKey": n.LicenseKey,
		"OrderID":    n.OrderID,
		"ExpiresAt":  expires,
	})
	if err != nil {
		return "", errors.Wrap(err, "render license email")
	}
	return buf.String(), nil
}

func (e *Email) Send(ctx context.Context, n Notification) Result {
	reference := uuid.NewString()
	l := e.log.With().
		Str("order_id", n.OrderID).
		Str("license_key", logger.MaskKey(n.LicenseKey)).
		Str("reference", reference).
		Logger()

	if n.Email == "" {
		l.Warn().Msg("no recipient, license email skipped")
		return Result{Delivered: false}
	}

	body, err := e.Render(n)
	if err != nil {
		l.Error().Err(err).Msg("license email failed")
		return Result{Delivered: false}
	}

	sender, err := e.dial(e.ServiceURL(n.Email))
	if err != nil {
		l.Error().Err(err).Msg("invalid smtp configuration")
		return Result{Delivered: false}
	}

	params := types.Params{}
	params.SetTitle(e.Subject(n))

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	done := make(chan []error, 1)
	go func() {
		done <- sender.Send(body, &params)
	}()

	select {
	case <-ctx.Done():
		l.Error().Err(ctx.Err()).Msg("license email timed out")
		return Result{Delivered: false}
	case errs := <-done:
		var failed []string
		for _, err := range errs {
			if err != nil {
				failed = append(failed, err.Error())
			}
		}
		if len(failed) > 0 {
			l.Error().Str("error", strings.Join(failed, "; ")).Msg("license email failed")
			return Result{Delivered: false}
		}
	}

	l.Info().Msg("license email sent")
	return Result{Delivered: true, Reference: reference}
}

func tierTitle(tier string) string {
	return cases.Title(language.English).String(tier)
}
