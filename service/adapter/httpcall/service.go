// Package httpcall is an effect adapter invoking HTTP endpoints.  Bearer
// credentials are never journaled: the intent carries a scy secret URL and the
// token is resolved at delivery time.
package httpcall

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/viant/continuum/service/adapter"
	"github.com/viant/scy"
)

const Name = "system/http"

// Input represents an HTTP effect request
type Input struct {
	Method    string            `json:"method,omitempty"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
	SecretURL string            `json:"secretURL,omitempty"`
	SecretKey string            `json:"secretKey,omitempty"`
	TimeoutMs int               `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
}

func (i *Input) Init() {
	if i.Method == "" {
		i.Method = http.MethodGet
	}
}

func (i *Input) Validate() error {
	if i.URL == "" {
		return fmt.Errorf("url was empty")
	}
	return nil
}

// Output represents an HTTP effect response
type Output struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// Service invokes HTTP endpoints as an effect adapter.
type Service struct {
	client     *http.Client
	scyService *scy.Service
}

// New creates a new httpcall adapter
func New() *Service {
	return &Service{client: http.DefaultClient, scyService: scy.New()}
}

// Name returns the adapter name
func (s *Service) Name() string {
	return Name
}

// Methods returns the adapter methods
func (s *Service) Methods() adapter.Signatures {
	return []adapter.Signature{
		{
			Name:   "call",
			Input:  reflect.TypeOf(&Input{}),
			Output: reflect.TypeOf(&Output{}),
		},
	}
}

// Method returns the specified method
func (s *Service) Method(name string) (adapter.Executable, error) {
	switch strings.ToLower(name) {
	case "call":
		return s.call, nil
	default:
		return nil, adapter.NewMethodNotFoundError(name)
	}
}

func (s *Service) call(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*Input)
	if !ok {
		return adapter.NewInvalidInputError(in)
	}
	output, ok := out.(*Output)
	if !ok {
		return adapter.NewInvalidOutputError(out)
	}
	return s.Call(ctx, input, output)
}

// Call performs the HTTP request.
func (s *Service) Call(ctx context.Context, input *Input, output *Output) error {
	input.Init()
	if err := input.Validate(); err != nil {
		return err
	}
	if input.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(input.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	var body io.Reader
	if input.Body != "" {
		body = strings.NewReader(input.Body)
	}
	request, err := http.NewRequestWithContext(ctx, strings.ToUpper(input.Method), input.URL, body)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", input.URL, err)
	}
	for key, value := range input.Headers {
		request.Header.Set(key, value)
	}
	if input.SecretURL != "" {
		token, err := s.bearerToken(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to resolve bearer token: %w", err)
		}
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", input.URL, err)
	}
	defer response.Body.Close()
	data, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", input.URL, err)
	}
	output.Status = response.StatusCode
	output.Body = string(data)
	output.Headers = make(map[string]string, len(response.Header))
	for key := range response.Header {
		output.Headers[key] = response.Header.Get(key)
	}
	return nil
}

func (s *Service) bearerToken(ctx context.Context, input *Input) (string, error) {
	resource := scy.NewResource(nil, input.SecretURL, input.SecretKey)
	secret, err := s.scyService.Load(ctx, resource)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(secret.String()), nil
}
