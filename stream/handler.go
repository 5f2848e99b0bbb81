// Package stream provides DynamoDB Streams handlers for the favorites table.
package stream

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/jacentio/favorites/store"
)

// Handler processes DynamoDB stream events for marker cleanup.
type Handler struct {
	store  *store.Store
	logger *zap.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(s *store.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:  s,
		logger: logger,
	}
}

// HandleMarkerCleanup deletes the uniqueness marker of every favorite removed
// without its marker, e.g. by TTL or a manual delete. Markers deleted together
// with their favorite are already gone, which the store tolerates.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleMarkerCleanup(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				zap.String("eventID", record.EventID),
				zap.String("code", store.ErrorCode(err)),
				zap.Error(err),
			)
			return err // Lambda retries the batch
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != string(events.DynamoDBOperationTypeRemove) {
		return nil
	}
	if getStringAttr(record.Change.OldImage, "Type") != store.TypeFavorite {
		return nil
	}

	item, err := store.DecodeItem(ConvertImage(record.Change.OldImage))
	if err != nil {
		return fmt.Errorf("decode old image: %w", err)
	}
	if item.UserID == "" || item.MovieID == "" || item.ID == "" {
		h.logger.Warn("favorite image missing identifiers",
			zap.String("eventID", record.EventID),
			zap.String("pk", item.PK),
			zap.String("sk", item.SK),
		)
		return nil
	}

	if err := h.store.DeleteOrphanMarker(ctx, item.UserID, item.MovieID, item.ID); err != nil {
		return fmt.Errorf("delete marker of %s: %w", item.ID, err)
	}

	h.logger.Debug("marker cleanup completed",
		zap.String("userID", item.UserID),
		zap.String("movieID", item.MovieID),
		zap.String("favoriteID", item.ID),
	)
	return nil
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// ConvertImage converts a stream image to SDK attribute values so it can be
// unmarshalled with attributevalue.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		if av := convertValue(v); av != nil {
			result[k] = av
		}
	}
	return result
}

func convertValue(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := make([]types.AttributeValue, 0, len(v.List()))
		for _, item := range v.List() {
			if av := convertValue(item); av != nil {
				list = append(list, av)
			}
		}
		return &types.AttributeValueMemberL{Value: list}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	}
	return nil
}
