package db

import (
	"errors"
	"io"
	"strings"
	"syscall"
)

var retryableErrs = []error{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	io.EOF,
}

// Driver errors don't always wrap the syscall error, so we also match on the rendered message.
var retryableErrStrings = []string{
	"connection reset by peer",
	"connection refused",
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	for _, retryableErr := range retryableErrs {
		if errors.Is(err, retryableErr) {
			return true
		}
	}

	for _, retryableErrString := range retryableErrStrings {
		if strings.Contains(err.Error(), retryableErrString) {
			return true
		}
	}

	return false
}
