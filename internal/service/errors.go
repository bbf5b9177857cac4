package service

import (
	"errors"
	"fmt"
)

// Policy and authorization failures surfaced by the messaging service.
// Handlers map these to HTTP statuses; none of them leak whether a
// resource exists to an unauthorized actor.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotParticipant    = errors.New("not a thread participant")
	ErrNotSender         = errors.New("only the sender may perform this action")
	ErrMessageDeleted    = errors.New("message is deleted")
	ErrEditWindowExpired = errors.New("edit window expired")
	ErrPinLimitExceeded  = errors.New("pin limit exceeded")
	ErrPartialMatch      = errors.New("requested messages do not all belong to the thread")
)

// SpamError reports a message rejected by the spam gate. The reason is
// safe to log and count; clients only see a generic "message blocked".
type SpamError struct {
	Reason string
}

func (e *SpamError) Error() string {
	return fmt.Sprintf("message blocked: %s", e.Reason)
}
