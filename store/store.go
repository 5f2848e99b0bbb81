package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/favorites/favorite"
	"github.com/jacentio/favorites/internal/keys"
)

// Store provides DynamoDB operations for favorites.
type Store struct {
	client Client
	config Config
}

// New creates a new Store instance.
func New(client Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.config
}

// ListByUser returns one page of a user's favorites ordered by id.
func (s *Store) ListByUser(ctx context.Context, userID string, opts favorite.ListOptions) (favorite.Page, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skpref)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: keys.UserPK(userID)},
			":skpref": &types.AttributeValueMemberS{Value: keys.FavoritePrefix},
		},
		Limit:            aws.Int32(int32(clampLimit(opts.Limit))),
		ScanIndexForward: aws.Bool(opts.Order == favorite.OrderAsc),
	}
	if start := startKey(opts.Cursor, userID); start != nil {
		input.ExclusiveStartKey = start
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return favorite.Page{}, fmt.Errorf("list favorites: %w", err)
	}

	page := favorite.Page{Items: make([]favorite.Favorite, 0, len(out.Items))}
	for _, raw := range out.Items {
		item, err := DecodeItem(raw)
		if err != nil {
			return favorite.Page{}, err
		}
		// The SK prefix already excludes markers; the type check guards
		// against anything else sharing the partition.
		if item.Type != TypeFavorite {
			continue
		}
		page.Items = append(page.Items, FromItem(item))
	}

	page.NextCursor, err = EncodeCursor(out.LastEvaluatedKey)
	if err != nil {
		return favorite.Page{}, err
	}
	return page, nil
}

// GetByID fetches a single favorite. The bool is false when it does not exist.
func (s *Store) GetByID(ctx context.Context, userID, id string) (favorite.Favorite, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.TableName),
		Key:       favoriteKey(userID, id),
	})
	if err != nil {
		return favorite.Favorite{}, false, fmt.Errorf("get favorite: %w", err)
	}
	if out.Item == nil {
		return favorite.Favorite{}, false, nil
	}

	item, err := DecodeItem(out.Item)
	if err != nil {
		return favorite.Favorite{}, false, err
	}
	if item.Type != TypeFavorite {
		return favorite.Favorite{}, false, nil
	}
	return FromItem(item), true, nil
}

// ExistsByMovieID checks GSI1 for a favorite of movieID. The index is
// eventually consistent, so this is only a fast path; Create is the authority.
func (s *Store) ExistsByMovieID(ctx context.Context, userID, movieID string) (bool, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		IndexName:              aws.String(s.config.IndexName),
		KeyConditionExpression: aws.String("GSI1PK = :gpk AND GSI1SK = :gsk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":gpk": &types.AttributeValueMemberS{Value: keys.MovieIndexPK(userID)},
			":gsk": &types.AttributeValueMemberS{Value: keys.MovieIndexSK(movieID)},
		},
		Limit:                aws.Int32(1),
		ProjectionExpression: aws.String("PK"),
	})
	if err != nil {
		return false, fmt.Errorf("check movie exists: %w", err)
	}
	return out.Count > 0, nil
}

// Create writes a favorite and its uniqueness marker in one transaction.
// Either put failing its condition rejects both and returns ErrConflict.
func (s *Store) Create(ctx context.Context, userID, id string, now time.Time, in favorite.CreateInput) (favorite.Favorite, error) {
	now = now.UTC()
	fav := favorite.Favorite{
		ID:        id,
		UserID:    userID,
		MovieID:   in.MovieID,
		Title:     in.Title,
		Year:      in.Year,
		Genres:    in.Genres,
		PosterURL: in.PosterURL,
		Notes:     in.Notes,
		Rating:    in.Rating,
		CreatedAt: now,
		UpdatedAt: now,
	}

	entity, err := attributevalue.MarshalMap(ToItem(fav))
	if err != nil {
		return favorite.Favorite{}, fmt.Errorf("marshal favorite: %w", err)
	}
	marker, err := attributevalue.MarshalMap(NewMarker(userID, in.MovieID, id, now))
	if err != nil {
		return favorite.Favorite{}, fmt.Errorf("marshal marker: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.config.TableName),
					Item:                entity,
					ConditionExpression: aws.String(itemNotExistsCondition),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(s.config.TableName),
					Item:                marker,
					ConditionExpression: aws.String(itemNotExistsCondition),
				},
			},
		},
	})
	if err != nil {
		return favorite.Favorite{}, mapCreateTransactionError(err)
	}
	return fav, nil
}

// Update applies the allow-listed fields of patch and bumps updatedAt.
// It never creates a record: the bool is false when the favorite is gone.
func (s *Store) Update(ctx context.Context, userID, id string, now time.Time, patch favorite.Patch) (favorite.Favorite, bool, error) {
	var update expression.UpdateBuilder
	fields := 0
	for _, field := range favorite.PatchableFields {
		v, ok := patch[field]
		if !ok {
			continue
		}
		update = update.Set(expression.Name(field), expression.Value(v))
		fields++
	}
	if fields == 0 {
		return s.GetByID(ctx, userID, id)
	}
	update = update.Set(expression.Name("updatedAt"), expression.Value(now.UTC()))

	cond := expression.Name("PK").AttributeExists().And(expression.Name("SK").AttributeExists())
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(cond).
		Build()
	if err != nil {
		return favorite.Favorite{}, false, fmt.Errorf("build update expression: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.config.TableName),
		Key:                       favoriteKey(userID, id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return favorite.Favorite{}, false, nil
		}
		return favorite.Favorite{}, false, fmt.Errorf("update favorite: %w", err)
	}
	if out.Attributes == nil {
		return favorite.Favorite{}, false, nil
	}

	item, err := DecodeItem(out.Attributes)
	if err != nil {
		return favorite.Favorite{}, false, err
	}
	return FromItem(item), true, nil
}

// Delete removes a favorite and its marker in one transaction. It returns
// false when the favorite does not exist.
func (s *Store) Delete(ctx context.Context, userID, id string) (bool, error) {
	// The marker key depends on movieId, which only the entity knows.
	current, found, err := s.GetByID(ctx, userID, id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName:           aws.String(s.config.TableName),
					Key:                 favoriteKey(userID, id),
					ConditionExpression: aws.String(itemExistsCondition),
				},
			},
			{
				// Unconditional: a marker already missing is not an error.
				Delete: &types.Delete{
					TableName: aws.String(s.config.TableName),
					Key:       markerKey(userID, current.MovieID),
				},
			},
		},
	})
	if err != nil {
		if hasReason(cancellationReasons(err), reasonConditionalCheckFailed) {
			// Removed by a concurrent delete between the read and the write.
			return false, nil
		}
		return false, fmt.Errorf("delete favorite: %w", err)
	}
	return true, nil
}

// CountByUser counts a user's favorites with a single COUNT query.
// DynamoDB stops a query at 1MB of scanned data, so very large partitions
// are undercounted. Good enough for a soft quota, nothing more.
func (s *Store) CountByUser(ctx context.Context, userID string) (int, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skpref)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: keys.UserPK(userID)},
			":skpref": &types.AttributeValueMemberS{Value: keys.FavoritePrefix},
		},
		Select: types.SelectCount,
	})
	if err != nil {
		return 0, fmt.Errorf("count favorites: %w", err)
	}
	return int(out.Count), nil
}

// DeleteOrphanMarker removes the marker of (userID, movieID) if it still
// belongs to favoriteID. A marker that is gone or was re-created for a newer
// favorite is left alone.
func (s *Store) DeleteOrphanMarker(ctx context.Context, userID, movieID, favoriteID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.config.TableName),
		Key:                 markerKey(userID, movieID),
		ConditionExpression: aws.String("#fid = :fid"),
		ExpressionAttributeNames: map[string]string{
			"#fid": "favId",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":fid": &types.AttributeValueMemberS{Value: favoriteID},
		},
	})
	if err != nil && !isConditionalCheckFailed(err) {
		return fmt.Errorf("delete marker: %w", err)
	}
	return nil
}

// mapCreateTransactionError maps a failed create transaction. A failed
// condition or a competing transaction on the same keys means another
// request owns the (user, movie) pair.
func mapCreateTransactionError(err error) error {
	if hasReason(cancellationReasons(err), reasonConditionalCheckFailed, reasonTransactionConflict) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return fmt.Errorf("create favorite: %w", err)
}

// clampLimit bounds a page size to [1, MaxLimit], zero meaning the default.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return favorite.DefaultLimit
	case limit > favorite.MaxLimit:
		return favorite.MaxLimit
	default:
		return limit
	}
}

// startKey decodes a cursor and keeps it only if it points into userID's
// favorites; anything else restarts the listing.
func startKey(cursor, userID string) map[string]types.AttributeValue {
	key := DecodeCursor(cursor)
	if len(key) != 2 {
		return nil
	}
	pk, ok := key["PK"].(*types.AttributeValueMemberS)
	if !ok || pk.Value != keys.UserPK(userID) {
		return nil
	}
	sk, ok := key["SK"].(*types.AttributeValueMemberS)
	if !ok || !strings.HasPrefix(sk.Value, keys.FavoritePrefix) {
		return nil
	}
	return key
}
