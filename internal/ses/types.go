package ses

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/pkg/apperr"
)

// charSet is the charset for all outbound message parts.
const charSet = "UTF-8"

// SendQuota mirrors the account-level quota SES reports. MaxSendRate is
// messages per second and changes rarely; polling it per send is safe.
type SendQuota struct {
	Max24HourSend   float64 `json:"max_24_hour_send"`
	MaxSendRate     float64 `json:"max_send_rate"`
	SentLast24Hours float64 `json:"sent_last_24_hours"`
}

// SendParams carries one outbound message. Only single-recipient sends
// are supported.
type SendParams struct {
	From      string            `json:"from"`
	To        string            `json:"to"`
	Subject   string            `json:"subject"`
	TextBody  string            `json:"text_body,omitempty"`
	HTMLBody  string            `json:"html_body,omitempty"`
	ReplyTo   string            `json:"reply_to,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	ConfigSet string            `json:"config_set,omitempty"`
}

func mapDkimStatus(s types.DkimStatus) domain.VerificationStatus {
	switch s {
	case types.DkimStatusSuccess:
		return domain.VerificationSuccess
	case types.DkimStatusFailed:
		return domain.VerificationFailed
	case types.DkimStatusNotStarted:
		return domain.VerificationNotStarted
	default: // PENDING, TEMPORARY_FAILURE
		return domain.VerificationPending
	}
}

func mapMailFromStatus(s types.MailFromDomainStatus) domain.VerificationStatus {
	switch s {
	case types.MailFromDomainStatusSuccess:
		return domain.VerificationSuccess
	case types.MailFromDomainStatusFailed:
		return domain.VerificationFailed
	default: // PENDING, TEMPORARY_FAILURE
		return domain.VerificationPending
	}
}

// classify maps SES SDK errors onto the application error taxonomy so
// services never inspect AWS error types themselves.
func classify(op string, err error) error {
	var reject *types.MessageRejected
	var notVerified *types.MailFromDomainNotVerifiedException
	var exists *types.AlreadyExistsException
	var notFound *types.NotFoundException
	var badReq *types.BadRequestException
	var tooMany *types.TooManyRequestsException

	switch {
	case errors.As(err, &reject):
		msg := "message rejected"
		if reject.Message != nil {
			msg = *reject.Message
		}
		return apperr.Wrap(apperr.Provider, msg, err)
	case errors.As(err, &notVerified):
		return apperr.Wrap(apperr.Provider, "sending domain not verified", err)
	case errors.As(err, &exists):
		return apperr.Wrap(apperr.Conflict, "already exists at provider", err)
	case errors.As(err, &notFound):
		return apperr.Wrap(apperr.NotFound, "not found at provider", err)
	case errors.As(err, &badReq):
		msg := "provider rejected request"
		if badReq.Message != nil {
			msg = *badReq.Message
		}
		return apperr.Wrap(apperr.Provider, msg, err)
	case errors.As(err, &tooMany):
		return apperr.Wrap(apperr.Provider, "provider throttled request", err)
	default:
		return apperr.Wrap(apperr.Provider, "provider call failed", fmt.Errorf("%s: %w", op, err))
	}
}
