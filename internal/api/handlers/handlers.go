package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody reads a JSON body into dst and runs struct validation.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid body: %v", models.ErrInvalidRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidRequest, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrMalformedCoupon), errors.Is(err, models.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDuplicateCoupon):
		return http.StatusConflict
	case errors.Is(err, models.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrResolution),
		errors.Is(err, models.ErrCommunication),
		errors.Is(err, models.ErrBartering):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and a stable error code.
func writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	code := statusFor(err)
	body := models.ErrorResponse{Error: models.ErrorCode(err), Detail: err.Error()}
	if code == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		body.Detail = ""
	}
	writeJSON(w, code, body)
}

// normalizeType accepts coupon type names case-insensitively.
func normalizeType(t *models.CouponType) error {
	parsed, err := models.ParseCouponType(string(*t))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
