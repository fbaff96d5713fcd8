package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
)

// SQSAPI is the subset of the SQS client used by the queue, narrowed for
// testing
type SQSAPI interface {
	SendMessage(ctx context.Context, input *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, input *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, input *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue implements ProcessingQueue over SQS
type SQSQueue struct {
	client   SQSAPI
	queueURL string
	registry *Registry
	jobPath  string
	logger   observability.Logger
}

// Config holds SQS queue configuration
type Config struct {
	QueueURL string `mapstructure:"queue_url"`
	Region   string `mapstructure:"region"`
	// EndpointURL targets SQS-compatible services (LocalStack, ElasticMQ)
	EndpointURL string `mapstructure:"endpoint_url"`
}

// NewSQSQueue builds the SQS client from config
func NewSQSQueue(ctx context.Context, cfg Config, registry *Registry, logger observability.Logger) (*SQSQueue, error) {
	if cfg.QueueURL == "" {
		return nil, apperrors.ServiceUnavailable("queue url is not configured")
	}
	var options []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		options = append(options, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "failed to load AWS config")
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})
	return NewSQSQueueWithAPI(client, cfg.QueueURL, registry, logger), nil
}

// NewSQSQueueWithAPI allows injecting a custom SQSAPI (for testing)
func NewSQSQueueWithAPI(api SQSAPI, queueURL string, registry *Registry, logger observability.Logger) *SQSQueue {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &SQSQueue{
		client:   api,
		queueURL: queueURL,
		registry: registry,
		jobPath:  ProcessDocumentJobPath,
		logger:   logger,
	}
}

// Enqueue schedules processing of a document. The job path is validated
// against the registry before the message is accepted.
func (q *SQSQueue) Enqueue(ctx context.Context, documentID, workspaceID string) (string, error) {
	if documentID == "" || workspaceID == "" {
		return "", apperrors.Validation("document id and workspace id are required")
	}
	if err := q.registry.Validate(q.jobPath); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "job path not resolvable")
	}

	job := Job{
		JobID:       uuid.NewString(),
		Path:        q.jobPath,
		DocumentID:  documentID,
		WorkspaceID: workspaceID,
		EnqueuedAt:  time.Now().UTC(),
	}
	body, err := json.Marshal(job)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "failed to marshal job")
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "failed to enqueue job")
	}

	q.logger.Info("enqueued processing job", map[string]interface{}{
		"job_id":       job.JobID,
		"document_id":  documentID,
		"workspace_id": workspaceID,
	})
	return job.JobID, nil
}

// Receive pulls up to maxMessages jobs, long-polling for waitSeconds.
// Malformed messages are skipped and logged; their receipt handles are still
// returned so the poison message can be deleted.
func (q *SQSQueue) Receive(ctx context.Context, maxMessages, waitSeconds int32) ([]Job, []string, error) {
	resp, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: maxMessages,
		WaitTimeSeconds:     waitSeconds,
	})
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "failed to receive jobs")
	}

	var jobs []Job
	var receiptHandles []string
	for _, msg := range resp.Messages {
		var job Job
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &job); err != nil {
			q.logger.Warn("skipping malformed job message", map[string]interface{}{"error": err.Error()})
			job = Job{}
		}
		jobs = append(jobs, job)
		receiptHandles = append(receiptHandles, aws.ToString(msg.ReceiptHandle))
	}
	return jobs, receiptHandles, nil
}

// DeleteMessage acknowledges a processed job
func (q *SQSQueue) DeleteMessage(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	return err
}

// Dispatch resolves and runs a job through the registry
func (q *SQSQueue) Dispatch(ctx context.Context, job Job) error {
	handler, ok := q.registry.Resolve(job.Path)
	if !ok {
		return apperrors.Newf(apperrors.CodeValidation, "no handler for job path %q", job.Path)
	}
	return handler(ctx, job.DocumentID, job.WorkspaceID)
}
