// Package notify forwards component log lines to AWS SES and SNS.
package notify

import (
	"context"
	"fmt"
	"time"

	"cleantalk-antispam/internal/common/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SESAPI is the part of the SES client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSAPI is the part of the SNS client used here.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// ==========================
// SES
// ==========================

type SESTarget struct {
	client SESAPI
	from   string
	to     string
	app    string
}

func NewSESTarget(client SESAPI, from, to, app string) *SESTarget {
	return &SESTarget{client: client, from: from, to: to, app: app}
}

func (t *SESTarget) Notify(ctx context.Context, channel, message string) error {
	subject := fmt.Sprintf("[%s] %s", t.app, channel)
	body := fmt.Sprintf("%s\n\nchannel: %s\ntime: %s\n", message, channel, time.Now().UTC().Format(time.RFC3339))

	_, err := t.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(t.from),
		Destination: &types.Destination{
			ToAddresses: []string{t.to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}
	return nil
}

// ==========================
// SNS
// ==========================

type SNSTarget struct {
	client   SNSAPI
	topicARN string
	app      string
}

func NewSNSTarget(client SNSAPI, topicARN, app string) *SNSTarget {
	return &SNSTarget{client: client, topicARN: topicARN, app: app}
}

func (t *SNSTarget) Notify(ctx context.Context, channel, message string) error {
	_, err := t.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(t.topicARN),
		Subject:  aws.String(fmt.Sprintf("[%s] %s", t.app, channel)),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}
	return nil
}

// ==========================
// Wiring
// ==========================

// Target matches antispam.LogTarget.
type Target interface {
	Notify(ctx context.Context, channel, message string) error
}

// NewTargets builds the targets enabled in cfg. It returns nil when none are.
func NewTargets(ctx context.Context, cfg *config.Config) ([]Target, error) {
	n := cfg.Notifications
	if !n.Email.Enabled && !n.SNS.Enabled {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(n.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var targets []Target
	if n.Email.Enabled {
		targets = append(targets, NewSESTarget(ses.NewFromConfig(awsCfg), n.Email.FromEmail, n.Email.ToEmail, cfg.App.Name))
	}
	if n.SNS.Enabled {
		targets = append(targets, NewSNSTarget(sns.NewFromConfig(awsCfg), n.SNS.TopicARN, cfg.App.Name))
	}
	return targets, nil
}
