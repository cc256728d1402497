package session

import (
	"errors"
	"fmt"
	"sort"

	"github.com/utafrali/ExpenseGo/internal/domain"
	apperrors "github.com/utafrali/ExpenseGo/pkg/errors"
	"github.com/utafrali/ExpenseGo/pkg/validator"
)

// Kind classifies a failed Result.
type Kind string

const (
	KindNone       Kind = ""
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindNetwork    Kind = "network"
	KindState      Kind = "state"
	KindEnded      Kind = "ended"
)

// Messages returned for failures the server did not describe.
const (
	MsgLoginFailed    = "Login failed"
	MsgRegisterFailed = "Registration failed"
	MsgVerifyFailed   = "Could not verify session"
	MsgNetwork        = "Unable to reach the server. Check your connection and try again."
	MsgInProgress     = "operation in progress"
	MsgSignedIn       = "already signed in"
	MsgNotSignedIn    = "not signed in"
	MsgSessionEnded   = "session ended"
)

// Result is the outcome of a session operation. Failures carry a message
// fit for display and, for validation, per-field reasons.
type Result struct {
	OK      bool
	Kind    Kind
	Message string
	Fields  map[string]string

	err error
}

// Err converts a failed Result into an error; nil when OK.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return errors.New(r.Message)
}

func ok() Result { return Result{OK: true} }

func stateResult(msg string) Result {
	return Result{Kind: KindState, Message: msg}
}

func endedResult() Result {
	return Result{Kind: KindEnded, Message: MsgSessionEnded, err: apperrors.SessionEnded()}
}

// failure classifies err from a backend call.
func failure(err error, fallback string) Result {
	if errors.Is(err, apperrors.ErrNetwork) {
		return Result{Kind: KindNetwork, Message: MsgNetwork, err: err}
	}
	return Result{Kind: KindAuth, Message: apperrors.Message(err, fallback), err: err}
}

// validate runs the struct's validation tags. The message names the first
// offending field in a stable order.
func validate(in any) (Result, bool) {
	err := validator.Validate(in)
	if err == nil {
		return Result{}, true
	}
	var ve *validator.ValidationError
	if !errors.As(err, &ve) {
		return Result{Kind: KindValidation, Message: err.Error(), err: apperrors.Validation(nil)}, false
	}
	fields := ve.Fields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return Result{
		Kind:    KindValidation,
		Message: fmt.Sprintf("%s %s", names[0], fields[names[0]]),
		Fields:  fields,
		err:     apperrors.Validation(fields),
	}, false
}

// Snapshot is a read-only copy of the session for consumers.
type Snapshot struct {
	Status domain.Status
	User   *domain.User
	Error  string
	Fields map[string]string
}

// IsAuthenticated reports a signed-in session.
func (s Snapshot) IsAuthenticated() bool { return s.Status == domain.StatusAuthenticated }

// Loading reports that a login or registration is in flight.
func (s Snapshot) Loading() bool { return s.Status == domain.StatusAuthenticating }
