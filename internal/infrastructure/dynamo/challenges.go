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

// headSortKey is the sort key of the per-(email, purpose) head item. "#" sorts
// before ULID characters, so the head never collides with a challenge id.
const headSortKey = "#head"

// challengeHead points at the most recently created challenge for a key and
// carries a version used as an optimistic lock: every issuance must CAS it,
// which serialises concurrent issuances for the same (email, purpose).
type challengeHead struct {
	VKey        string `dynamodbav:"vkey"`
	ChallengeID string `dynamodbav:"challenge_id"`
	CurrentID   string `dynamodbav:"current_id"`
	Version     int64  `dynamodbav:"version"`
}

// ChallengeRepo provides typed DynamoDB operations for the otp_challenges table.
// Challenge records are append-only; only status, attempt_count and consumed_at
// mutate, always through conditional writes.
type ChallengeRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewChallengeRepo(client *dynamodb.Client, tableName string) *ChallengeRepo {
	return &ChallengeRepo{client: client, tableName: tableName}
}

// GetCurrent returns the most recently created challenge for (email, purpose)
// and the head version to pass to CreateSuperseding. Returns domain.ErrNotFound
// when no challenge was ever issued for the key.
func (r *ChallengeRepo) GetCurrent(ctx context.Context, email, purpose string) (*domain.OTPChallenge, int64, error) {
	vkey := domain.VerificationKey(email, purpose)
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey(fieldVKey, vkey, "challenge_id", headSortKey),
	})
	if err != nil {
		return nil, 0, err
	}
	if out.Item == nil {
		return nil, 0, fmt.Errorf("no challenge for key: %w", domain.ErrNotFound)
	}
	var head challengeHead
	if err := attributevalue.UnmarshalMap(out.Item, &head); err != nil {
		return nil, 0, err
	}

	item, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey(fieldVKey, vkey, "challenge_id", head.CurrentID),
	})
	if err != nil {
		return nil, 0, err
	}
	if item.Item == nil {
		return nil, 0, fmt.Errorf("head points at missing challenge %s: %w", head.CurrentID, domain.ErrNotFound)
	}
	var ch domain.OTPChallenge
	if err := attributevalue.UnmarshalMap(item.Item, &ch); err != nil {
		return nil, 0, err
	}
	return &ch, head.Version, nil
}

// CreateSuperseding persists a new challenge and, in the same transaction,
// advances the head pointer and marks the previous challenge superseded.
// headVersion must be the version observed by GetCurrent (0 when the key is new);
// a concurrent issuance that moved the head first makes the CAS fail and the
// whole transaction returns domain.ErrConflict, so two challenges can never be
// simultaneously active.
func (r *ChallengeRepo) CreateSuperseding(ctx context.Context, ch *domain.OTPChallenge, prev *domain.OTPChallenge, headVersion int64) error {
	headItem, err := attributevalue.MarshalMap(&challengeHead{
		VKey:        ch.VKey,
		ChallengeID: headSortKey,
		CurrentID:   ch.ChallengeID,
		Version:     headVersion + 1,
	})
	if err != nil {
		return fmt.Errorf("marshal challenge head: %w", err)
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

	chItem, err := attributevalue.MarshalMap(ch)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}

	items := []types.TransactWriteItem{
		{Put: headPut},
		{Put: &types.Put{TableName: aws.String(r.tableName), Item: chItem}},
	}
	if prev != nil && prev.Status == domain.ChallengeStatusActive {
		items = append(items, types.TransactWriteItem{Update: &types.Update{
			TableName:                aws.String(r.tableName),
			Key:                      compositeKey(fieldVKey, prev.VKey, "challenge_id", prev.ChallengeID),
			UpdateExpression:         aws.String("SET #s = :sup"),
			ConditionExpression:      aws.String("#s = :active"),
			ExpressionAttributeNames: map[string]string{"#s": fieldStatus},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":sup":    &types.AttributeValueMemberS{Value: domain.ChallengeStatusSuperseded},
				":active": &types.AttributeValueMemberS{Value: domain.ChallengeStatusActive},
			},
		}})
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("concurrent issuance for %s: %w", ch.VKey, domain.ErrConflict)
		}
		return err
	}
	return nil
}

// IncrementAttempts atomically adds one failed attempt and returns the new
// count. The server-side ADD guarantees no increment is lost under concurrent
// wrong-code submissions. Fails with domain.ErrConflict when the challenge is
// no longer active.
func (r *ChallengeRepo) IncrementAttempts(ctx context.Context, ch *domain.OTPChallenge) (int, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      compositeKey(fieldVKey, ch.VKey, "challenge_id", ch.ChallengeID),
		UpdateExpression:         aws.String("ADD #a :one"),
		ConditionExpression:      aws.String("#s = :active"),
		ExpressionAttributeNames: map[string]string{"#a": fieldAttemptCount, "#s": fieldStatus},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":    &types.AttributeValueMemberN{Value: "1"},
			":active": &types.AttributeValueMemberS{Value: domain.ChallengeStatusActive},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, fmt.Errorf("challenge %s no longer active: %w", ch.ChallengeID, domain.ErrConflict)
		}
		return 0, err
	}
	var updated domain.OTPChallenge
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return 0, err
	}
	return updated.AttemptCount, nil
}

// MarkVerified consumes the challenge. The condition loses to a concurrent
// verification (single-winner) and to a concurrent fifth failed attempt, so a
// correct code can never slip past the lockout threshold.
func (r *ChallengeRepo) MarkVerified(ctx context.Context, ch *domain.OTPChallenge, now time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      compositeKey(fieldVKey, ch.VKey, "challenge_id", ch.ChallengeID),
		UpdateExpression:         aws.String("SET #s = :verified, #c = :now"),
		ConditionExpression:      aws.String("#s = :active AND #a < :max"),
		ExpressionAttributeNames: map[string]string{"#s": fieldStatus, "#c": fieldConsumedAt, "#a": fieldAttemptCount},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":verified": &types.AttributeValueMemberS{Value: domain.ChallengeStatusVerified},
			":now":      &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
			":active":   &types.AttributeValueMemberS{Value: domain.ChallengeStatusActive},
			":max":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", domain.MaxVerifyAttempts)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("challenge %s not consumable: %w", ch.ChallengeID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

// HasVerified reports whether any challenge for (email, purpose) was genuinely
// verified. Superseded challenges never count.
func (r *ChallengeRepo) HasVerified(ctx context.Context, email, purpose string) (bool, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		KeyConditionExpression:   aws.String("vkey = :k"),
		FilterExpression:         aws.String("#s = :verified"),
		ExpressionAttributeNames: map[string]string{"#s": fieldStatus},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k":        &types.AttributeValueMemberS{Value: domain.VerificationKey(email, purpose)},
			":verified": &types.AttributeValueMemberS{Value: domain.ChallengeStatusVerified},
		},
	})
	if err != nil {
		return false, err
	}
	return len(out.Items) > 0, nil
}
