// Package lambda deploys function archives to AWS Lambda.
// This is part of the Imperative Shell - handles I/O with the Lambda API.
package lambda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	smithy "github.com/aws/smithy-go"

	"github.com/artpar/lambdaship/internal/core/deployment"
	"github.com/artpar/lambdaship/internal/shell/artifacts"
)

// MaxInlineArchiveSize is the largest archive Lambda accepts as inline zip
// bytes. Larger archives must be staged in S3.
const MaxInlineArchiveSize = 50 * 1024 * 1024

// API is the subset of the Lambda client the deployer uses.
type API interface {
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
	CreateFunction(ctx context.Context, params *lambda.CreateFunctionInput, optFns ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error)
	UpdateFunctionCode(ctx context.Context, params *lambda.UpdateFunctionCodeInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error)
	UpdateFunctionConfiguration(ctx context.Context, params *lambda.UpdateFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error)
}

// =============================================================================
// Errors
// =============================================================================

// RemoteError reports a failed Lambda API call. Code and Message are set when
// the platform returned an API error.
type RemoteError struct {
	Op           string
	FunctionName string
	Code         string
	Message      string
	Err          error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.FunctionName, e.Detail())
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Detail returns the remote error code and message, or the transport error.
func (e *RemoteError) Detail() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Err.Error()
}

func newRemoteError(op, functionName string, err error) *RemoteError {
	re := &RemoteError{Op: op, FunctionName: functionName, Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		re.Code = apiErr.ErrorCode()
		re.Message = apiErr.ErrorMessage()
	}
	return re
}

// =============================================================================
// Deployer
// =============================================================================

// Deployer creates or updates Lambda functions from zip archives.
type Deployer struct {
	newClient   func(region string) API
	stager      artifacts.Stager
	keyPrefix   string
	runID       string
	waitTimeout time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	clients map[string]API
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithStager uploads archives through stager and deploys them from S3.
// Object keys are built with artifacts.ObjectKey(keyPrefix, remoteName, runID).
func WithStager(stager artifacts.Stager, keyPrefix, runID string) Option {
	return func(d *Deployer) {
		d.stager = stager
		d.keyPrefix = keyPrefix
		d.runID = runID
	}
}

// WithWaitTimeout waits up to timeout for a code update to settle before
// updating configuration, and for a new function to become active.
// Zero disables waiting.
func WithWaitTimeout(timeout time.Duration) Option {
	return func(d *Deployer) {
		d.waitTimeout = timeout
	}
}

// WithClientFactory replaces how per-region clients are built.
func WithClientFactory(newClient func(region string) API) Option {
	return func(d *Deployer) {
		d.newClient = newClient
	}
}

// NewDeployer creates a deployer using base for credentials and endpoint
// resolution. The region of each call comes from the function config.
func NewDeployer(base aws.Config, logger *slog.Logger, opts ...Option) *Deployer {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Deployer{
		newClient: func(region string) API {
			return lambda.NewFromConfig(base, func(o *lambda.Options) {
				o.Region = region
			})
		},
		logger:  logger.With("component", "lambda"),
		clients: make(map[string]API),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Deployer) client(region string) API {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.clients[region]; ok {
		return c
	}
	c := d.newClient(region)
	d.clients[region] = c
	return c
}

// codeSource is either inline zip bytes or an S3 location.
type codeSource struct {
	zip    []byte
	bucket string
	key    string
}

func (d *Deployer) code(ctx context.Context, archivePath, remoteName string) (codeSource, error) {
	if d.stager != nil {
		loc, err := d.stager.Stage(ctx, archivePath, artifacts.ObjectKey(d.keyPrefix, remoteName, d.runID))
		if err != nil {
			return codeSource{}, fmt.Errorf("stage archive: %w", err)
		}
		return codeSource{bucket: loc.Bucket, key: loc.Key}, nil
	}

	data, err := os.ReadFile(archivePath)
	if err != nil {
		return codeSource{}, fmt.Errorf("read archive: %w", err)
	}
	if len(data) > MaxInlineArchiveSize {
		d.logger.Warn("archive exceeds inline upload limit, configure an artifact bucket",
			"function", remoteName,
			"size", len(data),
		)
	}
	return codeSource{zip: data}, nil
}

// Deploy uploads the archive and creates the function when it does not
// exist, or updates its code and configuration when it does.
func (d *Deployer) Deploy(ctx context.Context, archivePath string, cfg deployment.FunctionConfig) (*deployment.DeployResult, error) {
	client := d.client(cfg.Region)

	src, err := d.code(ctx, archivePath, cfg.FunctionName)
	if err != nil {
		return nil, err
	}

	_, err = client.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(cfg.FunctionName),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return d.create(ctx, client, cfg, src)
		}
		return nil, newRemoteError("GetFunction", cfg.FunctionName, err)
	}
	return d.update(ctx, client, cfg, src)
}

func (d *Deployer) create(ctx context.Context, client API, cfg deployment.FunctionConfig, src codeSource) (*deployment.DeployResult, error) {
	d.logger.Info("creating function", "function", cfg.FunctionName, "region", cfg.Region)

	code := &types.FunctionCode{ZipFile: src.zip}
	if src.bucket != "" {
		code = &types.FunctionCode{S3Bucket: aws.String(src.bucket), S3Key: aws.String(src.key)}
	}

	out, err := client.CreateFunction(ctx, &lambda.CreateFunctionInput{
		FunctionName: aws.String(cfg.FunctionName),
		Role:         optionalString(cfg.Role),
		Handler:      aws.String(cfg.Handler),
		Runtime:      types.Runtime(cfg.Runtime),
		Description:  aws.String(cfg.Description),
		Timeout:      aws.Int32(cfg.Timeout),
		MemorySize:   aws.Int32(cfg.MemorySize),
		Code:         code,
	})
	if err != nil {
		return nil, newRemoteError("CreateFunction", cfg.FunctionName, err)
	}

	if d.waitTimeout > 0 {
		waiter := lambda.NewFunctionActiveV2Waiter(client)
		if err := waiter.Wait(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(cfg.FunctionName)}, d.waitTimeout); err != nil {
			return nil, newRemoteError("WaitFunctionActive", cfg.FunctionName, err)
		}
	}

	return &deployment.DeployResult{
		FunctionArn: aws.ToString(out.FunctionArn),
		Version:     aws.ToString(out.Version),
		Created:     true,
	}, nil
}

func (d *Deployer) update(ctx context.Context, client API, cfg deployment.FunctionConfig, src codeSource) (*deployment.DeployResult, error) {
	d.logger.Info("updating function", "function", cfg.FunctionName, "region", cfg.Region)

	codeIn := &lambda.UpdateFunctionCodeInput{FunctionName: aws.String(cfg.FunctionName)}
	if src.bucket != "" {
		codeIn.S3Bucket = aws.String(src.bucket)
		codeIn.S3Key = aws.String(src.key)
	} else {
		codeIn.ZipFile = src.zip
	}
	if _, err := client.UpdateFunctionCode(ctx, codeIn); err != nil {
		return nil, newRemoteError("UpdateFunctionCode", cfg.FunctionName, err)
	}

	// A configuration update is rejected while the code update is in progress.
	if d.waitTimeout > 0 {
		waiter := lambda.NewFunctionUpdatedV2Waiter(client)
		if err := waiter.Wait(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(cfg.FunctionName)}, d.waitTimeout); err != nil {
			return nil, newRemoteError("WaitFunctionUpdated", cfg.FunctionName, err)
		}
	}

	out, err := client.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(cfg.FunctionName),
		Role:         optionalString(cfg.Role),
		Handler:      aws.String(cfg.Handler),
		Runtime:      types.Runtime(cfg.Runtime),
		Description:  aws.String(cfg.Description),
		Timeout:      aws.Int32(cfg.Timeout),
		MemorySize:   aws.Int32(cfg.MemorySize),
	})
	if err != nil {
		return nil, newRemoteError("UpdateFunctionConfiguration", cfg.FunctionName, err)
	}

	return &deployment.DeployResult{
		FunctionArn: aws.ToString(out.FunctionArn),
		Version:     aws.ToString(out.Version),
	}, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
