package services

import (
	"errors"

	"bookmarket_go/locker"
	"bookmarket_go/store"
	"bookmarket_go/utils"
)

// Signal 返回给聊天层的结果信号，聊天层据此选择提示文案
type Signal string

const (
	SignalFoundLocal        Signal = "FOUND_LOCAL"
	SignalFoundExternal     Signal = "FOUND_EXTERNAL"
	SignalUnresolvable      Signal = "UNRESOLVABLE"
	SignalInvalidIdentifier Signal = "INVALID_IDENTIFIER"
	SignalAlreadyPresent    Signal = "ALREADY_PRESENT"
	SignalDuplicateRequest  Signal = "DUPLICATE_REQUEST"
	SignalListed            Signal = "LISTED"
	SignalDeleted           Signal = "DELETED"
	SignalNotOwner          Signal = "NOT_OWNER"
	SignalDBError           Signal = "DB_ERROR"
	SignalRequestFulfilled  Signal = "REQUEST_FULFILLED"
	SignalRequestRejected   Signal = "REQUEST_REJECTED"

	SignalInvalidPrice      Signal = "INVALID_PRICE"
	SignalUsernameRequired  Signal = "USERNAME_REQUIRED"
	SignalIncompleteRequest Signal = "INCOMPLETE_REQUEST"
	SignalRequestSubmitted  Signal = "REQUEST_SUBMITTED"
	SignalNotFound          Signal = "NOT_FOUND"
	SignalNotPending        Signal = "NOT_PENDING"
)

// 业务错误
var (
	ErrInvalidIdentifier = errors.New("identifier must be 10 or 13 digits")
	ErrInvalidPrice      = utils.ErrInvalidPrice
	ErrUsernameRequired  = errors.New("a public username is required to sell")
	ErrIncompleteRequest = errors.New("title is required for a manual request")
	ErrAlreadyPresent    = errors.New("book already present")
	ErrDuplicateRequest  = errors.New("request already submitted")
	ErrNotOwner          = errors.New("listing belongs to another seller")
	ErrListingNotFound   = errors.New("listing not found")
	ErrRequestNotFound   = errors.New("request not found")
	ErrRequestNotPending = errors.New("request already decided")
)

// SignalFor 把错误映射为信号，未知错误一律视为存储错误
func SignalFor(err error) Signal {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidIdentifier):
		return SignalInvalidIdentifier
	case errors.Is(err, ErrInvalidPrice):
		return SignalInvalidPrice
	case errors.Is(err, ErrUsernameRequired):
		return SignalUsernameRequired
	case errors.Is(err, ErrIncompleteRequest):
		return SignalIncompleteRequest
	case errors.Is(err, ErrAlreadyPresent):
		return SignalAlreadyPresent
	case errors.Is(err, ErrDuplicateRequest):
		return SignalDuplicateRequest
	case errors.Is(err, ErrNotOwner):
		return SignalNotOwner
	case errors.Is(err, ErrListingNotFound), errors.Is(err, ErrRequestNotFound):
		return SignalNotFound
	case errors.Is(err, ErrRequestNotPending):
		return SignalNotPending
	case errors.Is(err, store.ErrDatabase), errors.Is(err, locker.ErrLockTimeout):
		return SignalDBError
	default:
		return SignalDBError
	}
}
