package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

type Message struct {
	Recipient string
	Subject   string
	Body      string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type ProviderConfig struct {
	Region    string
	EmailFrom string
}

// NewProvider builds the provider named by kind for one channel: log, noop,
// ses (email only) or sns (sms only).
func NewProvider(ctx context.Context, kind, channel string, cfg ProviderConfig, log *zap.Logger) (Provider, error) {
	switch kind {
	case "", "log":
		return logProvider{channel: channel, log: log}, nil
	case "noop":
		return noopProvider{}, nil
	case "ses":
		if channel != ChannelEmail {
			return nil, fmt.Errorf("notify: ses cannot deliver %s", channel)
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("notify: load aws config: %w", err)
		}
		return NewSESProvider(ses.NewFromConfig(awsCfg), cfg.EmailFrom), nil
	case "sns":
		if channel != ChannelSMS {
			return nil, fmt.Errorf("notify: sns cannot deliver %s", channel)
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("notify: load aws config: %w", err)
		}
		return NewSNSProvider(sns.NewFromConfig(awsCfg)), nil
	default:
		return nil, fmt.Errorf("notify: unknown provider %q", kind)
	}
}

type logProvider struct {
	channel string
	log     *zap.Logger
}

func (p logProvider) Send(ctx context.Context, msg Message) error {
	p.log.Info("notification",
		zap.String("channel", p.channel),
		zap.String("recipient", msg.Recipient),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}

type noopProvider struct{}

func (noopProvider) Send(ctx context.Context, msg Message) error {
	return nil
}

type SESProvider struct {
	client SESAPI
	from   string
}

func NewSESProvider(client SESAPI, from string) *SESProvider {
	return &SESProvider{client: client, from: from}
}

func (p *SESProvider) Send(ctx context.Context, msg Message) error {
	_, err := p.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: []string{msg.Recipient},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(msg.Subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(msg.Body)},
			},
		},
		Source: aws.String(p.from),
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

type SNSProvider struct {
	client SNSAPI
}

func NewSNSProvider(client SNSAPI) *SNSProvider {
	return &SNSProvider{client: client}
}

func (p *SNSProvider) Send(ctx context.Context, msg Message) error {
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(msg.Recipient),
		Message:     aws.String(msg.Body),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
