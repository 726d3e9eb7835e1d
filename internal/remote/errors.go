package remote

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kalambet/errorblob/internal/model"
)

// wrapError converts a service failure into a *model.BackendError.
// Errors that already are BackendErrors pass through.
func wrapError(op string, err error) error {
	var be *model.BackendError
	if errors.As(err, &be) {
		return err
	}
	return &model.BackendError{Op: op, Transient: transient(err), Err: err}
}

// transient reports whether retrying the call that produced err may help.
// Authentication, permission and malformed-request failures are permanent.
func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableHTTP(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableHTTP(reqErr.HTTPStatusCode)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func retryableHTTP(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
