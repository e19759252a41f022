package batch

import (
	"context"
	"encoding/json"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"jobmail-engine/internal/common/aws"
	"jobmail-engine/internal/common/config"
	"jobmail-engine/internal/common/logger"
	"jobmail-engine/internal/models"
)

// AWSNotifier publishes a run summary to an SNS topic on every finish and
// mails the ops address when a run ends failed.
type AWSNotifier struct {
	cfg    config.NotificationConfig
	sns    *aws.SNSClient
	ses    *aws.SESClient
	logger logger.Logger
}

// NewAWSNotifier builds the notifier from configuration. Disabled channels
// leave their client nil and are skipped at notify time.
func NewAWSNotifier(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*AWSNotifier, error) {
	n := &AWSNotifier{
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "notifier"}),
	}

	if cfg.SNS.Enabled {
		client, err := aws.NewSNSClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		n.sns = client
	}
	if cfg.OpsAlert.Enabled {
		client, err := aws.NewSESClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		n.ses = client
	}
	return n, nil
}

// NotifyRunFinished fans out to the enabled channels. The first failure is
// returned but does not stop the other channel.
func (n *AWSNotifier) NotifyRunFinished(ctx context.Context, rec *models.BatchJobRecord) error {
	var firstErr error

	if n.sns != nil {
		if err := n.publishSummary(ctx, rec); err != nil {
			firstErr = err
			n.logger.Warn("sns publish failed", map[string]interface{}{
				"runId": rec.ID,
				"error": err,
			})
		}
	}

	if n.ses != nil && rec.Status == models.BatchStatusFailed {
		if err := n.sendFailureAlert(ctx, rec); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			n.logger.Warn("ops alert mail failed", map[string]interface{}{
				"runId": rec.ID,
				"error": err,
			})
		}
	}

	return firstErr
}

func (n *AWSNotifier) publishSummary(ctx context.Context, rec *models.BatchJobRecord) error {
	payload, err := json.Marshal(map[string]interface{}{
		"runId":     rec.ID,
		"status":    rec.Status,
		"processed": rec.Metrics.Processed,
		"failed":    rec.Metrics.Failed,
		"duration":  rec.Metrics.Duration.String(),
	})
	if err != nil {
		return err
	}

	_, err = n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(n.cfg.SNS.TopicARN),
		Subject:  awssdk.String(fmt.Sprintf("batch run %s: %s", rec.ID, rec.Status)),
		Message:  awssdk.String(string(payload)),
	})
	return err
}

func (n *AWSNotifier) sendFailureAlert(ctx context.Context, rec *models.BatchJobRecord) error {
	body := fmt.Sprintf(
		"Batch run %s failed.\n\nProcessed: %d\nFailed: %d\nError: %s\n",
		rec.ID, rec.Metrics.Processed, rec.Metrics.Failed, rec.ErrorDetail,
	)

	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Source: awssdk.String(n.cfg.OpsAlert.FromEmail),
		Destination: &sestypes.Destination{
			ToAddresses: []string{n.cfg.OpsAlert.ToEmail},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{
				Data: awssdk.String(fmt.Sprintf("[jobmail-engine] batch run %s failed", rec.ID)),
			},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: awssdk.String(body)},
			},
		},
	})
	return err
}
