// Package middleware contains the Gin middleware of the operations surface.
//
// This file implements RedactingLogger, the access logger. The webhook URL
// carries the bot token and the platform sends a shared secret header, so
// both must never reach the logs:
//
//   - bot tokens ("<digits>:<35+ url-safe chars>") are masked anywhere in the
//     path or query;
//   - the path segment after a configured prefix (e.g. /telegram/webhook/) is
//     masked even when it does not look like a token;
//   - Authorization, Cookie, the webhook secret header and any configured
//     header are replaced with "[REDACTED]".
//
// Bodies are never logged.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HeaderWebhookSecret is the header the platform uses to echo the secret
// token configured with setWebhook.
const HeaderWebhookSecret = "X-Telegram-Bot-Api-Secret-Token"

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are additional header names (case-insensitive) whose values
	// are replaced entirely.
	MaskHeaders []string
	// MaskPathAfter lists path prefixes whose following segment is masked.
	MaskPathAfter []string
}

var botTokenRE = regexp.MustCompile(`\d{5,}:[A-Za-z0-9_-]{30,}`)

const redacted = "[REDACTED]"

// RedactPath masks bot tokens in p and the segment following any of prefixes.
func RedactPath(p string, prefixes []string) string {
	for _, pre := range prefixes {
		if pre == "" || !strings.HasPrefix(p, pre) {
			continue
		}
		rest := p[len(pre):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			p = pre + redacted + rest[i:]
		} else if rest != "" {
			p = pre + redacted
		}
		break
	}
	return botTokenRE.ReplaceAllString(p, redacted)
}

// RedactingLogger returns the access logging middleware. It also attaches a
// request-scoped logger (see LoggerFrom) carrying request_id, method, and the
// route path.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization":                      {},
		"cookie":                             {},
		"set-cookie":                         {},
		strings.ToLower(HeaderWebhookSecret): {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		// FullPath is the route template (":token"), never the token itself.
		path := c.FullPath()
		if path == "" {
			path = RedactPath(c.Request.URL.Path, opts.MaskPathAfter)
		}
		query := botTokenRE.ReplaceAllString(c.Request.URL.RawQuery, redacted)

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				headers[k] = redacted
				continue
			}
			headers[k] = botTokenRE.ReplaceAllString(strings.Join(vv, ", "), redacted)
		}

		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.
			Str("query", query).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
