// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/ledgerhook/internal/errors"
)

var (
	// hexRegex matches lowercase or uppercase hex strings.
	hexRegex = regexp.MustCompile(`^[0-9a-fA-F]+$`)

	// base58Regex matches the base58 alphabet used by ledger transaction signatures
	// (no 0, O, I, or l).
	base58Regex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// notBlankRule validates that a string is not empty after trimming whitespace.
type notBlankRule struct{}

// NotBlank validates that a string contains non-whitespace content.
var NotBlank = notBlankRule{}

// Validate checks the value is a non-blank string.
func (r notBlankRule) Validate(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_not_blank", "must be a string")
	}
	if strings.TrimSpace(s) == "" {
		return validation.NewError("validation_not_blank", "cannot be blank")
	}
	return nil
}

// hexSignatureRule validates a hex-encoded HMAC-SHA256 signature (64 hex characters).
type hexSignatureRule struct{}

// HexSignature validates webhook signature header values.
var HexSignature = hexSignatureRule{}

// Validate checks the value is a 64-character hex string.
func (r hexSignatureRule) Validate(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_hex_signature", "signature must be a string")
	}
	if len(s) != 64 || !hexRegex.MatchString(s) {
		return validation.NewError(
			"validation_hex_signature",
			"signature must be a 64-character hex string",
		)
	}
	return nil
}

// TxSignatureLength bounds a base58 ledger transaction signature.
// Ed25519 signatures encode to 64-88 base58 characters.
const (
	txSignatureMinLen = 64
	txSignatureMaxLen = 88
)

// txSignatureRule validates a base58 ledger transaction signature.
type txSignatureRule struct{}

// TxSignature validates ledger transaction signature format without any network call.
var TxSignature = txSignatureRule{}

// Validate checks the value is a plausible base58-encoded transaction signature.
func (r txSignatureRule) Validate(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_tx_signature", "transaction signature must be a string")
	}
	if len(s) < txSignatureMinLen || len(s) > txSignatureMaxLen || !base58Regex.MatchString(s) {
		return validation.NewError(
			"validation_tx_signature",
			"transaction signature must be base58-encoded and 64-88 characters",
		)
	}
	return nil
}

// IsValidTxSignature reports whether s looks like a base58 transaction signature.
// Convenience form of TxSignature for non-struct validation call sites.
func IsValidTxSignature(s string) bool {
	return TxSignature.Validate(s) == nil
}
