package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"popai/internal/credential/models"
	"popai/pkg/domain"
	"popai/pkg/platform/sentinel"
)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// Single-table layout, PK: pk
//
//	COUNTER            next sequence number (atomic ADD)
//	TOKEN#<token_id>   the credential
//	OWNER#<owner>      owner index, points at token_id
const (
	pkAttr       = "pk"
	counterKey   = "COUNTER"
	tokenPrefix  = "TOKEN#"
	ownerPrefix  = "OWNER#"
	nextSeqAttr  = "next_sequence"
	maxMintTries = 3
)

type credentialItem struct {
	PK               string    `dynamodbav:"pk"`
	TokenID          string    `dynamodbav:"token_id"`
	Sequence         uint64    `dynamodbav:"sequence"`
	Owner            string    `dynamodbav:"owner"`
	Name             string    `dynamodbav:"name"`
	Description      string    `dynamodbav:"description"`
	VerificationHash string    `dynamodbav:"verification_hash"`
	IssuedAt         time.Time `dynamodbav:"issued_at"`
}

type ownerItem struct {
	PK      string `dynamodbav:"pk"`
	TokenID string `dynamodbav:"token_id"`
}

// DynamoCredentialStore keeps the ledger in one DynamoDB table. Sequence
// numbers come from an atomic counter; the owner index and the credential
// are written in one conditional transaction, so an owner can never end up
// with two credentials. A lost race leaves a gap in the sequence.
type DynamoCredentialStore struct {
	client   API
	table    string
	template models.Template
}

func New(client API, table string, template models.Template) *DynamoCredentialStore {
	return &DynamoCredentialStore{client: client, table: table, template: template}
}

// Bootstrap creates the table if it does not exist.
func (s *DynamoCredentialStore) Bootstrap(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(s.table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(pkAttr), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(pkAttr), KeyType: types.KeyTypeHash},
		},
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	slog.InfoContext(ctx, "created table", "table", s.table)
	return nil
}

func (s *DynamoCredentialStore) MintOrGet(ctx context.Context, owner domain.Identity, verificationHash string, issuedAt time.Time) (*models.Credential, bool, error) {
	for range maxMintTries {
		existing, err := s.FindByOwner(ctx, owner)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, err
		}

		seq, err := s.nextSequence(ctx)
		if err != nil {
			return nil, false, err
		}
		c := s.template.Mint(seq, owner, verificationHash, issuedAt.UTC())

		err = s.insert(ctx, c)
		if err == nil {
			return c, true, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, false, err
		}
		// Lost the race for this owner; the winner's row is read on the next pass.
	}
	return nil, false, fmt.Errorf("mint credential: owner index unresolved after %d attempts: %w", maxMintTries, sentinel.ErrUnavailable)
}

func (s *DynamoCredentialStore) nextSequence(ctx context.Context) (uint64, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       strKey(pkAttr, counterKey),
		UpdateExpression:          aws.String("ADD #n :one"),
		ExpressionAttributeNames:  map[string]string{"#n": nextSeqAttr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":one": &types.AttributeValueMemberN{Value: "1"}},
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("allocate sequence: %w", err)
	}
	attr, ok := out.Attributes[nextSeqAttr].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("allocate sequence: counter attribute missing")
	}
	next, err := strconv.ParseUint(attr.Value, 10, 64)
	if err != nil || next == 0 {
		return 0, fmt.Errorf("allocate sequence: bad counter value %q", attr.Value)
	}
	// The counter holds how many numbers were handed out; sequences start at 0.
	return next - 1, nil
}

func (s *DynamoCredentialStore) insert(ctx context.Context, c *models.Credential) error {
	credItem, err := attributevalue.MarshalMap(toItem(c))
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	idxItem, err := attributevalue.MarshalMap(ownerItem{PK: ownerPrefix + c.Owner.String(), TokenID: c.TokenID.String()})
	if err != nil {
		return fmt.Errorf("marshal owner index: %w", err)
	}
	notExists := aws.String("attribute_not_exists(pk)")
	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: aws.String(s.table), Item: idxItem, ConditionExpression: notExists}},
			{Put: &types.Put{TableName: aws.String(s.table), Item: credItem, ConditionExpression: notExists}},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
					return fmt.Errorf("credential for owner exists: %w", sentinel.ErrConflict)
				}
			}
		}
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

func (s *DynamoCredentialStore) FindByTokenID(ctx context.Context, tokenID domain.TokenID) (*models.Credential, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            strKey(pkAttr, tokenPrefix+tokenID.String()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("credential %s: %w", tokenID, sentinel.ErrNotFound)
	}
	var item credentialItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	return fromItem(item), nil
}

func (s *DynamoCredentialStore) FindByOwner(ctx context.Context, owner domain.Identity) (*models.Credential, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            strKey(pkAttr, ownerPrefix+owner.String()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get owner index: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("credential for owner: %w", sentinel.ErrNotFound)
	}
	var idx ownerItem
	if err := attributevalue.UnmarshalMap(out.Item, &idx); err != nil {
		return nil, fmt.Errorf("unmarshal owner index: %w", err)
	}
	return s.FindByTokenID(ctx, domain.TokenID(idx.TokenID))
}

// Count scans credential items. It is meant for operators, not hot paths.
func (s *DynamoCredentialStore) Count(ctx context.Context) (int, error) {
	total := 0
	var start map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.table),
			Select:                    types.SelectCount,
			FilterExpression:          aws.String("begins_with(pk, :p)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":p": &types.AttributeValueMemberS{Value: tokenPrefix}},
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return 0, fmt.Errorf("count credentials: %w", err)
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		start = out.LastEvaluatedKey
	}
}

func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

func toItem(c *models.Credential) credentialItem {
	return credentialItem{
		PK:               tokenPrefix + c.TokenID.String(),
		TokenID:          c.TokenID.String(),
		Sequence:         c.Sequence,
		Owner:            c.Owner.String(),
		Name:             c.Name,
		Description:      c.Description,
		VerificationHash: c.VerificationHash,
		IssuedAt:         c.IssuedAt,
	}
}

func fromItem(item credentialItem) *models.Credential {
	return &models.Credential{
		TokenID:          domain.TokenID(item.TokenID),
		Sequence:         item.Sequence,
		Name:             item.Name,
		Description:      item.Description,
		IssuedAt:         item.IssuedAt.UTC(),
		VerificationHash: item.VerificationHash,
		Owner:            domain.Identity(item.Owner),
	}
}
