package types

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var (
	usernameRegex = regexp.MustCompile(`^[\p{L}\p{N}_.-]+$`)
	handleRegex   = regexp.MustCompile(`^[a-z0-9_]+$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("scope", func(fl validator.FieldLevel) bool {
		return Scope(fl.Field().String()).Valid()
	})
	return v
}

// Validate checks the frame shape and the fields its Type requires.
// ARCHITECTURAL DISCOVERY: validation runs before any authorization or
// persistence so malformed input never reaches a store
func (e *Envelope) Validate() error {
	if err := validate.Struct(e); err != nil {
		return envelopeError(err)
	}

	switch e.Type {
	case InboundJoin:
		if e.Token == "" {
			return ErrMissingToken
		}
	case InboundMessage:
		return requireText(e.Text)
	case InboundPrivateMessage:
		if e.To == "" {
			return ErrMissingRecipient
		}
		return requireText(e.Text)
	case InboundGroupMessage:
		if e.GroupID == "" {
			return ErrMissingGroup
		}
		return requireText(e.Text)
	case InboundFileMessage:
		return e.validateFile()
	case InboundEditMessage:
		if err := requireTarget(e.Scope, e.MessageID); err != nil {
			return err
		}
		return requireText(e.Text)
	case InboundDelete:
		return requireTarget(e.Scope, e.MessageID)
	case InboundAddReaction, InboundRemoveReaction:
		if err := requireTarget(e.Scope, e.MessageID); err != nil {
			return err
		}
		if strings.TrimSpace(e.Reaction) == "" {
			return ErrMissingReaction
		}
	case InboundLoadPrivateHistory:
		if e.To == "" {
			return ErrMissingRecipient
		}
	case InboundLoadGroupHistory:
		if e.GroupID == "" {
			return ErrMissingGroup
		}
	case InboundMarkRead:
		return e.validateMarkRead()
	default:
		return ErrUnknownType
	}
	return nil
}

func (e *Envelope) validateFile() error {
	if e.File == nil {
		return ErrMissingFile
	}
	switch e.Target {
	case InboundMessage:
	case InboundGroupMessage:
		if e.GroupID == "" {
			return ErrMissingGroup
		}
	case InboundPrivateMessage:
		if e.To == "" {
			return ErrMissingRecipient
		}
	default:
		return ErrInvalidFileTarget
	}
	return nil
}

func (e *Envelope) validateMarkRead() error {
	switch e.Scope {
	case ScopeGlobal:
		if e.MessageID <= 0 {
			return ErrInvalidMessageID
		}
	case ScopeGroup:
		if e.GroupID == "" {
			return ErrMissingGroup
		}
		if e.MessageID <= 0 {
			return ErrInvalidMessageID
		}
	case ScopePrivate:
		if e.To == "" {
			return ErrMissingRecipient
		}
	default:
		return ErrInvalidScope
	}
	return nil
}

func requireText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return nil
}

func requireTarget(scope Scope, messageID int64) error {
	if !scope.Valid() {
		return ErrInvalidScope
	}
	if messageID <= 0 {
		return ErrInvalidMessageID
	}
	return nil
}

func envelopeError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ErrMalformedFrame
	}
	switch verrs[0].StructField() {
	case "Text":
		return ErrTextTooLong
	case "Scope":
		return ErrInvalidScope
	case "MessageID":
		return ErrInvalidMessageID
	case "Target":
		return ErrInvalidFileTarget
	case "Type":
		return ErrUnknownType
	default:
		return ErrMalformedFrame
	}
}

// IsValidUsername allows letters, digits and _ . - up to 32 characters.
func IsValidUsername(username string) bool {
	if len(username) < 1 || len(username) > 32 {
		return false
	}
	return usernameRegex.MatchString(username)
}

// IsValidHandle checks the public handle format: 3-32 lowercase alphanumerics or underscore.
func IsValidHandle(handle string) bool {
	if len(handle) < 3 || len(handle) > 32 {
		return false
	}
	return handleRegex.MatchString(handle)
}
