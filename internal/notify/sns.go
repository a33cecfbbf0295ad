// Package notify publishes credential mint events to SNS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"popai/internal/credential/models"
)

// API is the subset of the SNS client the publisher uses.
type API interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

const eventCredentialMinted = "credential.minted"

// mintedMessage is the JSON message body. The owner identity is left out;
// subscribers look it up through the public credential endpoint.
type mintedMessage struct {
	Event            string    `json:"event"`
	TokenID          string    `json:"token_id"`
	Sequence         uint64    `json:"sequence"`
	VerificationHash string    `json:"verification_hash"`
	IssuedAt         time.Time `json:"issued_at"`
}

// SNSPublisher implements the credential service Notifier.
type SNSPublisher struct {
	client   API
	topicARN string
}

func NewSNSPublisher(client API, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

func (p *SNSPublisher) CredentialMinted(ctx context.Context, c *models.Credential) error {
	body, err := json.Marshal(mintedMessage{
		Event:            eventCredentialMinted,
		TokenID:          c.TokenID.String(),
		Sequence:         c.Sequence,
		VerificationHash: c.VerificationHash,
		IssuedAt:         c.IssuedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode mint notification: %w", err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(eventCredentialMinted),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish mint notification for %s: %w", c.TokenID, err)
	}
	return nil
}
