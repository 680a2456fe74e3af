package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/kurbanlink/api/internal/domain"
)

// tokenHead mirrors challengeHead for the verification_tokens table.
type tokenHead struct {
	VKey      string `dynamodbav:"vkey"`
	TokenID   string `dynamodbav:"token_id"`
	CurrentID string `dynamodbav:"current_id"`
	Version   int64  `dynamodbav:"version"`
}

// TokenRepo provides typed DynamoDB operations for the verification_tokens table.
// Consumed and superseded tokens are retained for audit and idempotency inspection.
type TokenRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewTokenRepo(client *dynamodb.Client, tableName string) *TokenRepo {
	return &TokenRepo{client: client, tableName: tableName}
}

// GetCurrent returns the most recently issued token for (email, purpose) and
// the head version. domain.ErrNotFound when no token was ever issued.
func (r *TokenRepo) GetCurrent(ctx context.Context, email, purpose string) (*domain.VerificationToken, int64, error) {
	vkey := domain.VerificationKey(email, purpose)
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey(fieldVKey, vkey, "token_id", headSortKey),
	})
	if err != nil {
		return nil, 0, err
	}
	if out.Item == nil {
		return nil, 0, fmt.Errorf("no token for key: %w", domain.ErrNotFound)
	}
	var head tokenHead
	if err := attributevalue.UnmarshalMap(out.Item, &head); err != nil {
		return nil, 0, err
	}

	item, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey(fieldVKey, vkey, "token_id", head.CurrentID),
	})
	if err != nil {
		return nil, 0, err
	}
	if item.Item == nil {
		return nil, 0, fmt.Errorf("head points at missing token %s: %w", head.CurrentID, domain.ErrNotFound)
	}
	var tok domain.VerificationToken
	if err := attributevalue.UnmarshalMap(item.Item, &tok); err != nil {
		return nil, 0, err
	}
	return &tok, head.Version, nil
}

// CreateSuperseding persists a new token, advances the head pointer, and marks
// the previous active token superseded — all in one transaction, same CAS rule
// as ChallengeRepo.CreateSuperseding.
func (r *TokenRepo) CreateSuperseding(ctx context.Context, tok *domain.VerificationToken, prev *domain.VerificationToken, headVersion int64) error {
	headItem, err := attributevalue.MarshalMap(&tokenHead{
		VKey:      tok.VKey,
		TokenID:   headSortKey,
		CurrentID: tok.TokenID,
		Version:   headVersion + 1,
	})
	if err != nil {
		return fmt.Errorf("marshal token head: %w", err)
	}
	headPut := &types.Put{
		TableName: aws.String(r.tableName),
		Item:      headItem,
	}
	if headVersion == 0 {
		headPut.ConditionExpression = aws.String("attribute_not_exists(vkey)")
	} else {
		headPut.ConditionExpression = aws.String("version = :seen")
		headPut.ExpressionAttributeValues = map[string]types.AttributeValue{
			":seen": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", headVersion)},
		}
	}

	tokItem, err := attributevalue.MarshalMap(tok)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	items := []types.TransactWriteItem{
		{Put: headPut},
		{Put: &types.Put{TableName: aws.String(r.tableName), Item: tokItem}},
	}
	if prev != nil && prev.Status == domain.TokenStatusActive {
		items = append(items, types.TransactWriteItem{Update: &types.Update{
			TableName:                aws.String(r.tableName),
			Key:                      compositeKey(fieldVKey, prev.VKey, "token_id", prev.TokenID),
			UpdateExpression:         aws.String("SET #s = :sup"),
			ConditionExpression:      aws.String("#s = :active"),
			ExpressionAttributeNames: map[string]string{"#s": fieldStatus},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":sup":    &types.AttributeValueMemberS{Value: domain.TokenStatusSuperseded},
				":active": &types.AttributeValueMemberS{Value: domain.TokenStatusActive},
			},
		}})
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("concurrent token issuance for %s: %w", tok.VKey, domain.ErrConflict)
		}
		return err
	}
	return nil
}

// MarkConsumed redeems the token. The status condition makes exactly one of two
// concurrent redemptions win; the loser gets domain.ErrConflict.
func (r *TokenRepo) MarkConsumed(ctx context.Context, tok *domain.VerificationToken, now time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      compositeKey(fieldVKey, tok.VKey, "token_id", tok.TokenID),
		UpdateExpression:         aws.String("SET #s = :consumed, #c = :now"),
		ConditionExpression:      aws.String("#s = :active"),
		ExpressionAttributeNames: map[string]string{"#s": fieldStatus, "#c": fieldConsumedAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":consumed": &types.AttributeValueMemberS{Value: domain.TokenStatusConsumed},
			":now":      &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
			":active":   &types.AttributeValueMemberS{Value: domain.TokenStatusActive},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("token %s no longer active: %w", tok.TokenID, domain.ErrConflict)
		}
		return err
	}
	return nil
}
