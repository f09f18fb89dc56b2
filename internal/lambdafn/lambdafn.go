// Package lambdafn runs the ingest handler under the AWS Lambda runtime.
package lambdafn

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"rawingest/internal/logger"
	"rawingest/internal/models"
)

// Ingester runs one invocation.
type Ingester interface {
	Handle(ctx context.Context, env models.Envelope) models.Response
}

// HandlerFunc is the function registered with the Lambda runtime.
type HandlerFunc func(ctx context.Context, env models.Envelope) (models.Response, error)

// NewHandler adapts ing to the Lambda runtime. Failures are reported in the
// response, so the returned error is always nil and the runtime never retries.
func NewHandler(ing Ingester) HandlerFunc {
	return func(ctx context.Context, env models.Envelope) (models.Response, error) {
		if env.RequestContext.RequestID == "" {
			if lc, ok := lambdacontext.FromContext(ctx); ok {
				env.RequestContext.RequestID = lc.AwsRequestID
			}
		}
		return ing.Handle(ctx, env), nil
	}
}

// Start hands control to the Lambda runtime; it does not return.
func Start(ing Ingester) {
	log := logger.WithComponent("lambda")
	log.Info().
		Str("function", lambdacontext.FunctionName).
		Str("version", lambdacontext.FunctionVersion).
		Msg("starting lambda runtime")

	lambda.Start(NewHandler(ing))
}
