package adapter

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spool-learn/interview/pkg/model"
)

// ThreadCreator submits a completed interview to the learning-thread
// collaborator and returns the created thread ID.
type ThreadCreator interface {
	CreateThread(ctx context.Context, payload *model.ThreadPayload, authToken string) (string, error)
}

type lambdaThreadCreator struct {
	client       *lambda.Client
	functionName string
}

// NewLambdaThreadCreator creates a ThreadCreator that invokes the thread
// creation Lambda function.
func NewLambdaThreadCreator(ctx context.Context, region, functionName string) (ThreadCreator, error) {
	if functionName == "" {
		return nil, goerr.New("thread function name is required")
	}

	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load AWS config")
	}

	return &lambdaThreadCreator{
		client:       lambda.NewFromConfig(cfg),
		functionName: functionName,
	}, nil
}

// The Lambda fronts an API Gateway route, so the invocation payload and
// response use the proxy-integration envelope.
type lambdaRequest struct {
	HTTPMethod string            `json:"httpMethod"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

type lambdaResponse struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type threadResult struct {
	ThreadID string `json:"threadId"`
}

func (c *lambdaThreadCreator) CreateThread(ctx context.Context, payload *model.ThreadPayload, authToken string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal thread payload")
	}

	req := lambdaRequest{
		HTTPMethod: "POST",
		Path:       "/create",
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": authToken,
		},
		Body: string(body),
	}

	reqPayload, err := json.Marshal(req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal lambda request")
	}

	out, err := c.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   &c.functionName,
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        reqPayload,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to invoke thread creation lambda")
	}

	if out.FunctionError != nil {
		return "", goerr.New("thread creation lambda failed",
			goerr.V("function_error", *out.FunctionError))
	}

	var resp lambdaResponse
	if err := json.Unmarshal(out.Payload, &resp); err != nil {
		return "", goerr.Wrap(err, "failed to parse lambda response")
	}
	if resp.StatusCode >= 300 {
		return "", goerr.New("thread creation rejected",
			goerr.V("status_code", resp.StatusCode), goerr.V("body", resp.Body))
	}

	var result threadResult
	if err := json.Unmarshal([]byte(resp.Body), &result); err != nil {
		return "", goerr.Wrap(err, "failed to parse thread result")
	}
	if result.ThreadID == "" {
		return "", goerr.New("thread creation returned no thread ID")
	}

	return result.ThreadID, nil
}
