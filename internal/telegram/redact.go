package telegram

import (
	"errors"
	"net/url"
)

// redactURLError strips the request URL from transport errors.
func redactURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return &url.Error{Op: ue.Op, URL: "getUpdates", Err: ue.Err}
	}
	return err
}
