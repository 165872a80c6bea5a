package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/artpar/lambdaship/internal/core/deployment"
	"github.com/artpar/lambdaship/internal/shell/archive"
	"github.com/artpar/lambdaship/internal/shell/artifacts"
	"github.com/artpar/lambdaship/internal/shell/command"
	"github.com/artpar/lambdaship/internal/shell/events"
	"github.com/artpar/lambdaship/internal/shell/journal"
	"github.com/artpar/lambdaship/internal/shell/lambda"
	"github.com/artpar/lambdaship/internal/shell/metrics"
	"github.com/artpar/lambdaship/internal/shell/pipeline"
)

// app is the state shared by all commands of one invocation.
type app struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
}

// load reads the configuration with flags applied and builds the logger.
func (a *app) load(flags *pflag.FlagSet) (*Config, *slog.Logger, error) {
	cfg, err := LoadConfig(a.configPath, flags)
	if err != nil {
		return nil, nil, &CLIError{Op: "load config", Err: err, ExitCode: ExitConfigError}
	}
	return cfg, SetupLogger(cfg, a.stderr), nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "lambdaship",
		Short: "Package Node.js functions and deploy them to AWS Lambda",
		Long: `lambdaship packages each function directory (metadata, dependency install,
zip archive) with bounded concurrency, then creates or updates the function
in every configured environment, one environment after another.

Configuration is read from --config (YAML), LAMBDASHIP_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (YAML)")

	root.AddCommand(newDeployCmd(a), newHistoryCmd(a), newVersionCmd(a))
	return root
}

// =============================================================================
// deploy
// =============================================================================

func newDeployCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy [functions...]",
		Short: "Package and deploy functions",
		Long: `Package and deploy functions to every configured environment.

Examples:
  # Deploy two functions to staging, then prod
  lambdaship deploy --env staging,prod --prefix myapp- api worker

  # Deploy the functions listed under deploy.functions without calling AWS
  lambdaship deploy --config lambdaship.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.load(cmd.Flags())
			if err != nil {
				return err
			}
			return a.deploy(cmd.Context(), cfg, logger, args)
		},
	}

	flags := cmd.Flags()
	flags.StringSlice("env", nil, "environments to deploy to, in order (default: the default environment)")
	flags.String("prefix", "", "prefix of every remote function name")
	flags.String("region", "", "AWS region")
	flags.String("role", "", "execution role ARN for created functions")
	flags.Int("concurrency", 0, "maximum functions packaged or deployed at once")
	flags.String("functions-root", "", "directory function paths are resolved against")
	flags.Bool("dry-run", false, "package functions but only log the deployments")
	return cmd
}

func (a *app) deploy(ctx context.Context, cfg *Config, logger *slog.Logger, args []string) error {
	functionNames := args
	if len(functionNames) == 0 {
		functionNames = cfg.Deploy.Functions
	}
	if len(functionNames) == 0 {
		return &CLIError{Op: "deploy", Err: errors.New("no functions given"), ExitCode: ExitConfigError}
	}

	dcfg, err := deployment.NewConfig(cfg.DeploymentOptions())
	if err != nil {
		return &CLIError{Op: "deploy", Err: err, ExitCode: ExitConfigError}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return &CLIError{Op: "generate run id", Err: err, ExitCode: ExitConfigError}
	}
	runID := id.String()
	logger = logger.With("run_id", runID)

	deployer, err := newRemoteDeployer(ctx, cfg, runID, logger)
	if err != nil {
		return err
	}

	bus := events.NewBus(logger)
	bus.SubscribeAll(events.LogSubscriber(logger))
	recorder := metrics.NewRecorder(nil)
	bus.SubscribeAll(recorder.Handle)

	var runnerOpts []command.ExecRunnerOption
	if len(cfg.Install.Env) > 0 {
		runnerOpts = append(runnerOpts, command.WithEnv(cfg.Install.Env...))
	}

	run, err := pipeline.New(functionNames, dcfg, pipeline.Dependencies{
		Runner:   command.NewExecRunner(logger, runnerOpts...),
		Archiver: archive.NewZipBuilder(),
		Deployer: deployer,
		Install:  pipeline.InstallCommand{Name: cfg.Install.Command, Args: cfg.Install.Args},
	},
		pipeline.WithLogger(logger),
		pipeline.WithBus(bus),
		pipeline.WithID(runID),
		pipeline.WithTempRoot(cfg.Deploy.TempDir),
	)
	if err != nil {
		return &CLIError{Op: "deploy", Err: err, ExitCode: ExitConfigError}
	}

	var j *journal.Journal
	if cfg.Journal.Enabled {
		j, err = openJournal(cfg.Journal, logger)
		if err != nil {
			return err
		}
		defer j.Close()

		err = j.BeginRun(ctx, &journal.Run{
			ID:           runID,
			Functions:    functionNames,
			Environments: cfg.Deploy.Environments,
			StartedAt:    time.Now(),
		})
		if err != nil {
			return &CLIError{Op: "record run", Err: err, ExitCode: ExitJournalError}
		}
		bus.SubscribeAll(j.Subscriber(runID, nil))
	}

	runErr := run.Execute(ctx)

	if j != nil {
		// The run context may already be cancelled; the outcome is still recorded.
		if err := j.FinishRun(context.Background(), runID, time.Now(), runErr); err != nil {
			logger.Warn("failed to record run outcome", "error", err)
		}
	}
	if cfg.Metrics.Textfile != "" {
		if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("failed to write metrics", "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}

	envs := dcfg.Environments()
	fmt.Fprintf(a.stdout, "deployed %d function(s) to %d environment(s) (run %s)\n", len(functionNames), len(envs), runID)
	return nil
}

// newRemoteDeployer builds the Lambda deployer, or a logging stand-in for
// dry runs.
func newRemoteDeployer(ctx context.Context, cfg *Config, runID string, logger *slog.Logger) (pipeline.RemoteDeployer, error) {
	if cfg.Deploy.DryRun {
		return lambda.NewDryRunDeployer(logger), nil
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &CLIError{Op: "load aws config", Err: err, ExitCode: ExitConfigError}
	}

	opts := []lambda.Option{lambda.WithWaitTimeout(cfg.AWS.WaitTimeout)}

	if cfg.Artifacts.Bucket != "" {
		s3cfg := artifacts.S3Config{
			Endpoint:  cfg.Artifacts.Endpoint,
			AccessKey: cfg.Artifacts.AccessKey,
			SecretKey: cfg.Artifacts.SecretKey,
			Bucket:    cfg.Artifacts.Bucket,
			Region:    cfg.Artifacts.Region,
			UseSSL:    cfg.Artifacts.UseSSL,
		}
		if s3cfg.AccessKey == "" {
			s3cfg.AccessKey = cfg.AWS.AccessKeyID
			s3cfg.SecretKey = cfg.AWS.SecretAccessKey
		}
		if s3cfg.Region == "" {
			s3cfg.Region = cfg.Deploy.Region
		}

		stager, err := artifacts.NewS3Stager(s3cfg, logger)
		if err != nil {
			return nil, &CLIError{Op: "create artifact stager", Err: err, ExitCode: ExitConfigError}
		}
		if err := stager.EnsureBucket(ctx); err != nil {
			return nil, &CLIError{Op: "prepare artifact bucket", Err: err, ExitCode: ExitDeployError}
		}
		opts = append(opts, lambda.WithStager(stager, cfg.Artifacts.KeyPrefix, runID))
	}

	return lambda.NewDeployer(awsCfg, logger, opts...), nil
}

// loadAWSConfig resolves credentials from the config, falling back to the
// SDK default chain (environment, shared profile, instance role).
func loadAWSConfig(ctx context.Context, cfg *Config) (aws.Config, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Deploy.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWS.Profile))
	}
	if cfg.AWS.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, cfg.AWS.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.AWS.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
	}
	return awsCfg, nil
}

func openJournal(cfg JournalConfig, logger *slog.Logger) (*journal.Journal, error) {
	if cfg.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, &CLIError{Op: "open journal", Err: err, ExitCode: ExitJournalError}
		}
	}
	j, err := journal.Open(cfg.DSN, logger)
	if err != nil {
		return nil, &CLIError{Op: "open journal", Err: err, ExitCode: ExitJournalError}
	}
	return j, nil
}

// =============================================================================
// history
// =============================================================================

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent deployment runs",
		Long: `List recent deployment runs from the journal, newest first.
With --run, list the deployments of one run instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.load(cmd.Flags())
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return &CLIError{Op: "history", Err: errors.New("journal is disabled"), ExitCode: ExitConfigError}
			}

			j, err := openJournal(cfg.Journal, logger)
			if err != nil {
				return err
			}
			defer j.Close()

			if runID != "" {
				return a.printDeployments(cmd.Context(), j, runID)
			}
			return a.printRuns(cmd.Context(), j, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 lists all)")
	cmd.Flags().StringVar(&runID, "run", "", "show the deployments of this run")
	return cmd
}

func (a *app) printRuns(ctx context.Context, j *journal.Journal, limit int) error {
	runs, err := j.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, newStyles(a.stdout).renderRuns(runs))
	return err
}

func (a *app) printDeployments(ctx context.Context, j *journal.Journal, runID string) error {
	run, err := j.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	deployments, err := j.ListDeployments(ctx, runID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, newStyles(a.stdout).renderRunDetail(run, deployments))
	return err
}

// =============================================================================
// version
// =============================================================================

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "lambdaship %s (built %s)\n", Version, BuildTime)
		},
	}
}
