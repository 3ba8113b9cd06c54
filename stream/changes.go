// Package stream turns DynamoDB Streams records into document change events.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/pathstore/docpath"
	"github.com/jacentio/pathstore/store"
)

// ChangeType describes what happened to a document.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is a single document change. Before is nil for added documents and
// After is nil for removed ones. Either image may also be nil when the
// stream view type does not include it.
type Change struct {
	Type   ChangeType
	Path   docpath.Path
	Before store.Record
	After  store.Record
}

// ChangeFunc receives changes for a subscribed collection.
type ChangeFunc func(ctx context.Context, change Change) error

type subscription struct {
	collection string
	fn         ChangeFunc
}

// Handler dispatches stream records to subscribers.
type Handler struct {
	store  *store.Store
	logger *slog.Logger

	mu   sync.RWMutex
	subs []subscription
}

// NewHandler creates a new stream handler. The store supplies the table
// layout used to decode keys and images.
func NewHandler(s *store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		logger: logger,
	}
}

// Subscribe registers fn for changes to documents directly inside
// collectionPath. An empty collectionPath receives every change.
func (h *Handler) Subscribe(collectionPath string, fn ChangeFunc) error {
	if collectionPath != "" {
		p, err := docpath.Parse(collectionPath)
		if err != nil {
			return err
		}
		if !p.IsCollection() {
			return fmt.Errorf("subscribe %q: %w", collectionPath, store.ErrNotCollection)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, subscription{collection: collectionPath, fn: fn})
	return nil
}

// HandleChanges processes a batch of stream records in order.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleChanges(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord decodes one stream record and delivers it to matching subscribers.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	var typ ChangeType
	switch record.EventName {
	case "INSERT":
		typ = ChangeAdded
	case "MODIFY":
		typ = ChangeModified
	case "REMOVE":
		typ = ChangeRemoved
	default:
		return nil
	}

	cfg := h.store.Config()
	collection := getStringAttr(record.Change.Keys, cfg.CollectionAttr)
	id := getStringAttr(record.Change.Keys, cfg.IDAttr)
	if collection == "" || id == "" {
		// Not written by Store; nothing to route.
		h.logger.Debug("skipping record without document key", "eventID", record.EventID)
		return nil
	}

	path, err := docpath.Parse(collection + "/" + id)
	if err != nil {
		h.logger.Warn("skipping record with invalid path",
			"eventID", record.EventID,
			"error", err,
		)
		return nil
	}

	subs := h.matching(collection)
	if len(subs) == 0 {
		return nil
	}

	change := Change{Type: typ, Path: path}
	if change.Before, err = h.decodeImage(record.Change.OldImage); err != nil {
		return fmt.Errorf("decode old image of %s: %w", path, err)
	}
	if change.After, err = h.decodeImage(record.Change.NewImage); err != nil {
		return fmt.Errorf("decode new image of %s: %w", path, err)
	}

	h.logger.Debug("dispatching change",
		"path", path.String(),
		"type", string(typ),
		"subscribers", len(subs),
	)

	for _, fn := range subs {
		if err := fn(ctx, change); err != nil {
			return fmt.Errorf("subscriber for %s: %w", path, err)
		}
	}
	return nil
}

func (h *Handler) matching(collection string) []ChangeFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var fns []ChangeFunc
	for _, sub := range h.subs {
		if sub.collection == "" || sub.collection == collection {
			fns = append(fns, sub.fn)
		}
	}
	return fns
}

func (h *Handler) decodeImage(image map[string]events.DynamoDBAttributeValue) (store.Record, error) {
	if len(image) == 0 {
		return nil, nil
	}
	return h.store.Decode(ConvertImage(image), "")
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// ConvertImage converts a DynamoDB stream image to SDK attribute values.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		if av := convertAttr(v); av != nil {
			result[k] = av
		}
	}
	return result
}

// convertAttr converts one stream attribute, recursing into lists and maps.
// It returns nil for attributes of an unknown type.
func convertAttr(v events.DynamoDBAttributeValue) types.AttributeValue {
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
			if av := convertAttr(item); av != nil {
				list = append(list, av)
			}
		}
		return &types.AttributeValueMemberL{Value: list}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	}
	return nil
}
