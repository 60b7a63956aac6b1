package knock

import (
	"bytes"
	"context"
	"fmt"
	"golang.org/x/oauth2"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type knockEndpoint struct {
	baseUrl string
	client  *http.Client
	parser  IDirectoryParser
}

// NewKnockEndpoint creates an IDirectory for the Knock users API.
// The API key is sent as a Bearer token on every request.
func NewKnockEndpoint(params KnockParameters, parser IDirectoryParser) IDirectory {
	var ctx = context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{
		Transport: http.DefaultTransport,
	})
	var client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: params.ApiKey,
		TokenType:   "Bearer",
	}))
	client.Timeout = params.Timeout
	if parser == nil {
		parser = new(structuredParser)
	}
	return &knockEndpoint{
		baseUrl: params.ApiUrl,
		client:  client,
		parser:  parser,
	}
}

func (ke *knockEndpoint) composeUrl(paths ...string) (result *url.URL, err error) {
	var uri *url.URL
	if uri, err = url.Parse(ke.baseUrl); err != nil {
		return
	}
	var ruri *url.URL
	for _, path := range paths {
		if ruri, err = url.Parse(path); err != nil {
			return
		}
		if !strings.HasSuffix(uri.Path, "/") {
			uri.Path += "/"
		}
		uri = uri.ResolveReference(ruri)
	}

	result = uri
	return
}

// executeRequest returns the response body when the status is one of accepted
func (ke *knockEndpoint) executeRequest(rq *http.Request, accepted ...int) (body []byte, err error) {
	var rs *http.Response
	if rs, err = ke.client.Do(rq); err != nil {
		return
	}
	defer func() { _ = rs.Body.Close() }()

	if body, err = io.ReadAll(rs.Body); err != nil {
		return
	}
	for _, code := range accepted {
		if rs.StatusCode == code {
			return
		}
	}

	var knockUrl = rq.URL.String()
	if strings.HasPrefix(knockUrl, ke.baseUrl) {
		knockUrl = knockUrl[len(ke.baseUrl):]
		knockUrl = strings.Trim(knockUrl, "/")
	}
	err = &HttpError{
		Method:     rq.Method,
		Path:       knockUrl,
		StatusCode: rs.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
	body = nil
	return
}

func (ke *knockEndpoint) Users(ctx context.Context) (users []*RemoteUser, more bool, err error) {
	var uri *url.URL
	if uri, err = ke.composeUrl("users"); err != nil {
		err = fmt.Errorf("%w: %w", ErrRemoteFetchFailed, err)
		return
	}

	var rq *http.Request
	if rq, err = http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil); err != nil {
		err = fmt.Errorf("%w: %w", ErrRemoteFetchFailed, err)
		return
	}
	rq.Header.Add("Accept", "application/json")

	var body []byte
	if body, err = ke.executeRequest(rq, http.StatusOK); err != nil {
		err = fmt.Errorf("%w: %w", ErrRemoteFetchFailed, err)
		return
	}

	if users, more, err = ke.parser.ParseUsers(body); err != nil {
		err = fmt.Errorf("%w: %w", ErrRemoteFetchFailed, err)
		return
	}
	users = uniqueUsers(users)
	return
}

func (ke *knockEndpoint) BulkIdentify(ctx context.Context, payload *Payload) (response string, err error) {
	var uri *url.URL
	if uri, err = ke.composeUrl("users/bulk/identify"); err != nil {
		err = fmt.Errorf("%w: %w", ErrSubmitFailed, err)
		return
	}

	var data []byte
	if data, err = payload.Marshal(); err != nil {
		err = fmt.Errorf("%w: %w", ErrSubmitFailed, err)
		return
	}

	var rq *http.Request
	if rq, err = http.NewRequestWithContext(ctx, http.MethodPost, uri.String(), bytes.NewBuffer(data)); err != nil {
		err = fmt.Errorf("%w: %w", ErrSubmitFailed, err)
		return
	}
	rq.Header.Add("Content-Type", "application/json")
	rq.Header.Add("Accept", "application/json")

	var body []byte
	if body, err = ke.executeRequest(rq, http.StatusOK, http.StatusCreated); err != nil {
		err = fmt.Errorf("%w: %w", ErrSubmitFailed, err)
		return
	}
	response = ke.parser.Pretty(body)
	return
}
