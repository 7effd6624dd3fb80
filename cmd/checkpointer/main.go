/*
 * Copyright (c) 2023 VMware, Inc.
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of this software and
 * associated documentation files (the "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is furnished to do
 * so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all copies or substantial
 * portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT
 * NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
 * WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 */
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/vmware/vmware-go-checkpointer/clientlibrary/config"
	"github.com/vmware/vmware-go-checkpointer/clientlibrary/worker"
	"github.com/vmware/vmware-go-checkpointer/logger"
)

// lambdaRuntimeAPIEnv is set by the Lambda runtime in the function's environment.
const lambdaRuntimeAPIEnv = "AWS_LAMBDA_RUNTIME_API"

func main() {
	// a missing .env file is not an error
	_ = godotenv.Load()

	app := cli.App{
		Name:  "checkpointer",
		Usage: "Applies Kinesis records exactly once per consumer using per shard checkpoints",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			{
				Name:        "lambda",
				Description: "Runs as the handler of a Lambda function subscribed to a Kinesis stream",
				Action:      runLambda,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "report-batch-item-failures",
						EnvVars: []string{"REPORT_BATCH_ITEM_FAILURES"},
						Usage:   "report the first unapplied record of each failed shard instead of failing the event",
					},
				},
			},
			{
				Name:        "poll",
				Description: "Reads every shard of a stream with GetRecords until interrupted",
				Action:      runPoll,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "stream",
						EnvVars:  []string{"STREAM_NAME"},
						Required: true,
					},
					&cli.StringFlag{
						Name:    "kinesis-endpoint",
						EnvVars: []string{"KINESIS_ENDPOINT"},
					},
					&cli.StringFlag{
						Name:    "initial-position",
						EnvVars: []string{"INITIAL_POSITION"},
						Value:   "TRIM_HORIZON",
						Usage:   "LATEST or TRIM_HORIZON, used for shards without a lease",
					},
				},
			},
			{
				Name:        "provision",
				Description: "Creates the lease table if it does not exist",
				Action:      runProvision,
			},
			{
				Name:        "rewind",
				Description: "Deletes the consumer's lease on a shard so it is read again from the start",
				Action:      runRewind,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "shard",
						Required: true,
					},
				},
			},
			{
				Name:        "leases",
				Description: "Lists the consumer's leases",
				Action:      runLeases,
			},
		},
	}

	if err := app.Run(runtimeArgs(os.Args, os.Getenv)); err != nil {
		fmt.Fprintf(os.Stderr, "checkpointer: %v\n", err)
		os.Exit(1)
	}
}

// runtimeArgs selects the lambda command when the Lambda runtime starts the binary without arguments.
func runtimeArgs(args []string, getenv func(string) string) []string {
	if len(args) == 1 && getenv(lambdaRuntimeAPIEnv) != "" {
		return append(args, "lambda")
	}
	return args
}

func runLambda(c *cli.Context) error {
	s, err := newStack(c, true)
	if err != nil {
		return err
	}
	if err := s.store.EnsureProvisioned(c.Context); err != nil {
		return err
	}
	if err := s.cfg.MonitoringService.Init(worker.ApplicationName, s.cfg.ConsumerID); err != nil {
		return err
	}
	if err := s.cfg.MonitoringService.Start(); err != nil {
		return err
	}

	h := worker.NewLambdaHandler(worker.NewCheckpointController(s.cfg, s.store, s.handler))
	if c.Bool("report-batch-item-failures") {
		lambda.Start(h.HandleWithBatchItemFailures)
		return nil
	}
	h.Start()
	return nil
}

func runPoll(c *cli.Context) error {
	s, err := newStack(c, true)
	if err != nil {
		return err
	}

	pos, ok := config.ParseInitialPositionInStream(c.String("initial-position"))
	if !ok {
		return fmt.Errorf("unknown initial position %q", c.String("initial-position"))
	}
	s.cfg.WithStreamName(c.String("stream")).
		WithKinesisEndpoint(c.String("kinesis-endpoint")).
		WithInitialPositionInStream(pos)

	w := worker.NewWorker(s.handler, s.cfg).WithCheckpointer(s.store)
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Shutdown()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	s.log.Infof("Received %v, shutting down", sig)
	return nil
}

func runProvision(c *cli.Context) error {
	s, err := newStack(c, false)
	if err != nil {
		return err
	}
	if err := s.store.EnsureProvisioned(c.Context); err != nil {
		return err
	}
	s.log.Infof("Lease table %s is ready", s.cfg.TableName)
	return nil
}

func runRewind(c *cli.Context) error {
	s, err := newStack(c, false)
	if err != nil {
		return err
	}
	controller := worker.NewCheckpointController(s.cfg, s.store, s.handler)
	return controller.Rewind(c.Context, c.String("shard"))
}

func runLeases(c *cli.Context) error {
	s, err := newStack(c, false)
	if err != nil {
		return err
	}
	controller := worker.NewCheckpointController(s.cfg, s.store, s.handler)
	leases, err := controller.Leases(c.Context)
	if err != nil {
		return err
	}
	for _, lease := range leases {
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", lease.ShardID, lease.Checkpoint)
	}
	s.log.WithFields(logger.Fields{"consumer": s.cfg.ConsumerID}).Debugf("Listed %d leases", len(leases))
	return nil
}
