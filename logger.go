package nel

import (
	"io"

	"github.com/rs/zerolog"
)

// Logger returns the Client's zerolog.Logger.
func (c *Client) Logger() *zerolog.Logger {
	return c.config.Logger
}

// SetLogger replaces the Client's logger with one writing to w. If w is
// already a *zerolog.Logger it is used as such, otherwise it is wrapped.
func (c *Client) SetLogger(w io.Writer) *Client {
	_ = WithLogger(w)(c.config)
	return c
}
