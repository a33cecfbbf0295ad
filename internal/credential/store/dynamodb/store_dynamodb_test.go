package dynamodb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/suite"

	"popai/internal/credential/models"
	"popai/pkg/domain"
	"popai/pkg/platform/sentinel"
)

// fakeDynamo emulates the handful of single-table operations the store
// issues, including conditional transactions.
type fakeDynamo struct {
	mu      sync.Mutex
	items   map[string]map[string]types.AttributeValue
	created bool
	// beforeTransact runs before a transaction is applied, outside the lock.
	beforeTransact func()
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func pkOf(key map[string]types.AttributeValue) string {
	return key[pkAttr].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[pkOf(in.Key)]}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := pkOf(in.Key)
	item, ok := f.items[pk]
	if !ok {
		item = map[string]types.AttributeValue{pkAttr: &types.AttributeValueMemberS{Value: pk}}
		f.items[pk] = item
	}
	attr := in.ExpressionAttributeNames["#n"]
	cur := 0
	if n, ok := item[attr].(*types.AttributeValueMemberN); ok {
		cur, _ = strconv.Atoi(n.Value)
	}
	next := &types.AttributeValueMemberN{Value: strconv.Itoa(cur + 1)}
	item[attr] = next
	return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{attr: next}}, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if f.beforeTransact != nil {
		f.beforeTransact()
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if aws.ToString(ti.Put.ConditionExpression) == "attribute_not_exists(pk)" {
			if _, exists := f.items[pkOf(ti.Put.Item)]; exists {
				reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
				failed = true
			}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}
	for _, ti := range in.TransactItems {
		f.items[pkOf(ti.Put.Item)] = ti.Put.Item
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := in.ExpressionAttributeValues[":p"].(*types.AttributeValueMemberS).Value
	var n int32
	for pk := range f.items {
		if strings.HasPrefix(pk, prefix) {
			n++
		}
	}
	return &dynamodb.ScanOutput{Count: n}, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.created {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists: " + aws.ToString(in.TableName))}
	}
	f.created = true
	return &dynamodb.CreateTableOutput{}, nil
}

type DynamoCredentialStoreSuite struct {
	suite.Suite
	fake  *fakeDynamo
	store *DynamoCredentialStore
	ctx   context.Context
	now   time.Time
}

func TestDynamoCredentialStoreSuite(t *testing.T) {
	suite.Run(t, new(DynamoCredentialStoreSuite))
}

func (s *DynamoCredentialStoreSuite) SetupTest() {
	s.fake = newFakeDynamo()
	s.store = New(s.fake, "popai_credentials", models.Template{TokenPrefix: "T", Name: "PoPAI Verified Human", Description: "desc"})
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC)
}

func (s *DynamoCredentialStoreSuite) TestBootstrapIsIdempotent() {
	s.Require().NoError(s.store.Bootstrap(s.ctx))
	s.Require().NoError(s.store.Bootstrap(s.ctx))
}

func (s *DynamoCredentialStoreSuite) TestMintOrGet() {
	c, minted, err := s.store.MintOrGet(s.ctx, "bob", "h1", s.now)
	s.Require().NoError(err)
	s.True(minted)
	s.Equal(domain.TokenID("T0"), c.TokenID)

	again, minted, err := s.store.MintOrGet(s.ctx, "bob", "h2", s.now)
	s.Require().NoError(err)
	s.False(minted)
	s.Equal(c, again)

	byToken, err := s.store.FindByTokenID(s.ctx, "T0")
	s.Require().NoError(err)
	s.Equal(c, byToken)

	next, minted, err := s.store.MintOrGet(s.ctx, "carol", "h3", s.now)
	s.Require().NoError(err)
	s.True(minted)
	s.Equal(domain.TokenID("T1"), next.TokenID)

	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	_, err = s.store.FindByTokenID(s.ctx, "T9")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *DynamoCredentialStoreSuite) TestLostRaceReturnsWinnersCredential() {
	// A competing mint for the same owner lands between our lookup and our
	// transaction.
	s.fake.beforeTransact = func() {
		s.fake.beforeTransact = nil
		_, _, err := New(s.fake, "popai_credentials", s.store.template).MintOrGet(s.ctx, "bob", "winner", s.now)
		s.Require().NoError(err)
	}

	c, minted, err := s.store.MintOrGet(s.ctx, "bob", "loser", s.now)
	s.Require().NoError(err)
	s.False(minted)
	s.Equal("winner", c.VerificationHash)

	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *DynamoCredentialStoreSuite) TestConcurrentMintOrGet() {
	const owners = 4
	const perOwner = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	tokens := map[domain.Identity]map[domain.TokenID]bool{}
	for o := range owners {
		owner := domain.Identity(fmt.Sprintf("owner-%d", o))
		tokens[owner] = map[domain.TokenID]bool{}
		for range perOwner {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c, _, err := s.store.MintOrGet(s.ctx, owner, "h", s.now)
				if !s.NoError(err) {
					return
				}
				mu.Lock()
				tokens[owner][c.TokenID] = true
				mu.Unlock()
			}()
		}
	}
	wg.Wait()

	for _, ids := range tokens {
		s.Len(ids, 1)
	}
	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(owners, n)
}
