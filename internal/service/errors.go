package service

import (
	"errors"
	"fmt"
)

// ErrorKind 区分助手编排过程中的失败类别。
type ErrorKind string

const (
	KindUpload               ErrorKind = "upload"
	KindIndexCreation        ErrorKind = "index_creation"
	KindAssistantCreation    ErrorKind = "assistant_creation"
	KindDocumentSetExists    ErrorKind = "document_set_exists"
	KindAssistantUnavailable ErrorKind = "assistant_unavailable"
	KindThreadCreation       ErrorKind = "thread_creation"
	KindMessageAppend        ErrorKind = "message_append"
	KindRunStart             ErrorKind = "run_start"
	KindRunFailed            ErrorKind = "run_failed"
	KindRunTimeout           ErrorKind = "run_timeout"
	KindResponseMissing      ErrorKind = "response_missing"
)

// AssistantError 是编排层返回的类型化错误。Reason 为服务商给出的失败原因（如有）。
type AssistantError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *AssistantError) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AssistantError) Unwrap() error {
	return e.Err
}

// Is 按类别匹配，使 errors.Is(err, ErrRunFailed) 对任意原因都成立。
func (e *AssistantError) Is(target error) bool {
	t, ok := target.(*AssistantError)
	return ok && t.Kind == e.Kind
}

var (
	ErrUpload               = &AssistantError{Kind: KindUpload}
	ErrIndexCreation        = &AssistantError{Kind: KindIndexCreation}
	ErrAssistantCreation    = &AssistantError{Kind: KindAssistantCreation}
	ErrDocumentSetExists    = &AssistantError{Kind: KindDocumentSetExists}
	ErrAssistantUnavailable = &AssistantError{Kind: KindAssistantUnavailable}
	ErrThreadCreation       = &AssistantError{Kind: KindThreadCreation}
	ErrMessageAppend        = &AssistantError{Kind: KindMessageAppend}
	ErrRunStart             = &AssistantError{Kind: KindRunStart}
	ErrRunFailed            = &AssistantError{Kind: KindRunFailed}
	ErrRunTimeout           = &AssistantError{Kind: KindRunTimeout}
	ErrResponseMissing      = &AssistantError{Kind: KindResponseMissing}
)

var (
	ErrEmptyQuestion   = errors.New("question must not be empty")
	ErrTurnInProgress  = errors.New("a question is already being answered in this session")
	ErrSessionNotFound = errors.New("session not found or expired")
)

func newAssistantError(kind ErrorKind, reason string, err error) *AssistantError {
	return &AssistantError{Kind: kind, Reason: reason, Err: err}
}

// UserMessage 将一次失败的问答转换为展示给用户的助手提示。
func UserMessage(err error) string {
	var ae *AssistantError
	if !errors.As(err, &ae) {
		return "Sorry, something went wrong while answering your question. Please try again."
	}
	switch ae.Kind {
	case KindThreadCreation:
		return "Sorry, I couldn't start a conversation with the assistant. Please try again in a moment."
	case KindMessageAppend:
		return "Sorry, your question couldn't be delivered to the assistant. Please try again."
	case KindRunStart:
		return "Sorry, the assistant couldn't start working on your question. Please try again."
	case KindRunFailed:
		if ae.Reason != "" {
			return fmt.Sprintf("Sorry, the assistant failed to answer (%s). Please try again.", ae.Reason)
		}
		return "Sorry, the assistant failed to answer. Please try again."
	case KindRunTimeout:
		return "Sorry, the assistant took too long to answer. Please try again."
	case KindResponseMissing:
		return "Sorry, the assistant finished without producing an answer. Please rephrase and try again."
	case KindAssistantUnavailable:
		return "Sorry, the assistant is not set up yet. Please contact the site operator."
	}
	return "Sorry, something went wrong while answering your question. Please try again."
}
