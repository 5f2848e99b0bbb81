package store

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Condition expressions shared by the write paths.
const (
	itemNotExistsCondition = "attribute_not_exists(PK) AND attribute_not_exists(SK)"
	itemExistsCondition    = "attribute_exists(PK) AND attribute_exists(SK)"
)

// Cancellation reason codes reported by TransactWriteItems.
const (
	reasonConditionalCheckFailed = "ConditionalCheckFailed"
	reasonTransactionConflict    = "TransactionConflict"
)

// isConditionalCheckFailed reports whether a single-item write failed its condition.
func isConditionalCheckFailed(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}

// cancellationReasons returns the per-item reason codes of a cancelled
// transaction, or nil when err is not a TransactionCanceledException.
func cancellationReasons(err error) []string {
	var txErr *types.TransactionCanceledException
	if !errors.As(err, &txErr) {
		return nil
	}
	codes := make([]string, len(txErr.CancellationReasons))
	for i, reason := range txErr.CancellationReasons {
		if reason.Code != nil {
			codes[i] = *reason.Code
		}
	}
	return codes
}

// hasReason reports whether any cancellation reason matches one of codes.
func hasReason(reasons []string, codes ...string) bool {
	for _, r := range reasons {
		for _, c := range codes {
			if r == c {
				return true
			}
		}
	}
	return false
}
