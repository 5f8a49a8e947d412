// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package settle

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error codes surfaced by exit endpoints.
const (
	CodeFarmerNotFound       = "FARMER_NOT_FOUND"
	CodeNoActiveContract     = "NO_ACTIVE_CONTRACT"
	CodeExitInProgress       = "EXIT_IN_PROGRESS"
	CodeInvalidWallet        = "INVALID_WALLET"
	CodeBelowMinimum         = "EXIT_AMOUNT_BELOW_MINIMUM"
	CodeCalculationImbalance = "CALCULATION_IMBALANCE"
	CodeInternal             = "INTERNAL_ERROR"
)

// CodedError is a user-visible settlement failure. Message is safe to
// return to callers; internal causes are logged, never attached.
type CodedError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements error.
func (e *CodedError) Error() string {
	return e.Code + ": " + e.Message
}

func codedErrorf(code, format string, args ...any) error {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode extracts the settlement code of err, unwrapping as needed.
// Errors without a code classify as INTERNAL_ERROR.
func ErrorCode(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// IsCoded reports whether err carries a user-visible settlement code.
func IsCoded(err error) bool {
	var ce *CodedError
	return errors.As(err, &ce)
}
