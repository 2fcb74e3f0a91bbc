package oci

import (
	"net/http"

	"github.com/jmgilman/depsync/errors"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/errcode"
)

// translate maps registry errors to platform error codes.
func translate(err error, hash string) error {
	if err == nil {
		return nil
	}

	ctx := map[string]interface{}{"hash": hash}

	var resp *errcode.ErrorResponse
	if errors.As(err, &resp) {
		ctx["status"] = resp.StatusCode
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.WrapWithContext(err, errors.CodeInvalidConfig, "registry rejected credentials", ctx)
		case http.StatusNotFound:
			return errors.WrapWithContext(err, errors.CodeNotFound, "registry resource not found", ctx)
		}
	}

	switch {
	case errors.Is(err, auth.ErrBasicCredentialNotFound):
		return errors.WrapWithContext(err, errors.CodeInvalidConfig, "registry credentials not found", ctx)
	case errors.Is(err, errdef.ErrNotFound):
		return errors.WrapWithContext(err, errors.CodeNotFound, "registry resource not found", ctx)
	case errors.Is(err, errdef.ErrSizeExceedsLimit):
		return errors.WrapWithContext(err, errors.CodeInvalidInput, "registry content too large", ctx)
	}
	return errors.WrapWithContext(err, errors.CodeNetwork, "registry request failed", ctx)
}
