package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
	goopenai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"deepchat/model"
)

// classifyStatus maps an HTTP status code to an error kind.
func classifyStatus(status int) model.Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.KindAuth
	case status == http.StatusTooManyRequests:
		return model.KindRateLimited
	case status >= 500:
		return model.KindProviderUnreachable
	default:
		return model.KindProtocol
	}
}

// classifyError maps any adapter failure to a typed error. It understands the
// error types of every SDK the adapters use, plus transport-level failures.
func classifyError(providerID string, err error) *model.Error {
	if err == nil {
		return nil
	}

	var typed *model.Error
	if errors.As(err, &typed) {
		if typed.Provider == "" {
			typed.Provider = providerID
		}
		return typed
	}

	wrap := func(kind model.Kind) *model.Error {
		return &model.Error{Kind: kind, Provider: providerID, Err: err}
	}

	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return wrap(classifyStatus(oaiErr.StatusCode))
	}

	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return wrap(classifyStatus(antErr.StatusCode))
	}

	var goAPIErr *goopenai.APIError
	if errors.As(err, &goAPIErr) {
		return wrap(classifyStatus(goAPIErr.HTTPStatusCode))
	}

	var goReqErr *goopenai.RequestError
	if errors.As(err, &goReqErr) {
		return wrap(classifyStatus(goReqErr.HTTPStatusCode))
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return wrap(classifyStatus(genaiErr.Code))
	}

	var ollamaErr api.StatusError
	if errors.As(err, &ollamaErr) {
		return wrap(classifyStatus(ollamaErr.StatusCode))
	}

	if isUnreachable(err) {
		return wrap(model.KindProviderUnreachable)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return wrap(model.KindProtocol)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return wrap(model.KindProviderUnreachable)
	}

	return wrap(model.KindProtocol)
}

// isUnreachable reports transport failures: refused connections, DNS
// failures and other dial errors.
func isUnreachable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
