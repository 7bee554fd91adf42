package req

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/mind-engage/markingsheet/internal/apperr"
	"github.com/mind-engage/markingsheet/internal/validate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // shared codec

// MaxBody caps request bodies read by Decode and Read.
const MaxBody = 1 << 20

// Body reads the whole request body. Bodies over MaxBody fail with
// CodeTooLarge instead of being cut short.
func Body(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, MaxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Wrap(err, apperr.CodeTooLarge, "request body too large")
		}
		return nil, apperr.Wrap(err, apperr.CodeInvalidArgument, "unreadable body")
	}
	return raw, nil
}

// Decode decodes the JSON body into dest without validating it.
func Decode(r *http.Request, dest any) error {
	raw, err := Body(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return apperr.Wrap(fmt.Errorf("json.Unmarshal: %w", err), apperr.CodeInvalidArgument, "Invalid JSON")
	}
	return nil
}

// Read decodes the JSON body into dest and validates it.
func Read(r *http.Request, dest any) error {
	if err := Decode(r, dest); err != nil {
		return err
	}
	return validate.Struct(r.Context(), dest)
}
