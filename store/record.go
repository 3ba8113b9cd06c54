package store

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Record is a document as returned by reads: the stored fields plus the
// document id under the configured id field. Numbers decode as float64.
type Record map[string]any

// ID returns the string stored under field, or "" if absent.
func (r Record) ID(field string) string {
	id, _ := r[field].(string)
	return id
}

// encodeFields marshals caller data, refusing the table key attributes.
func (s *Store) encodeFields(data map[string]any) (map[string]types.AttributeValue, error) {
	for name := range data {
		if err := s.checkField(name); err != nil {
			return nil, err
		}
	}
	if len(data) == 0 {
		return map[string]types.AttributeValue{}, nil
	}
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	return item, nil
}

// Decode converts a raw table item into a Record, injecting the document id
// under idField (Config.IDField when empty). A stored field with the same
// name as idField takes precedence over the injected id.
func (s *Store) Decode(raw map[string]types.AttributeValue, idField string) (Record, error) {
	if idField == "" {
		idField = s.config.IDField
	}

	fields := make(map[string]types.AttributeValue, len(raw))
	for k, v := range raw {
		if s.config.isKeyAttr(k) {
			continue
		}
		fields[k] = v
	}

	var data map[string]any
	if err := attributevalue.UnmarshalMap(fields, &data); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}

	rec := Record{idField: s.keyString(raw, s.config.IDAttr)}
	for k, v := range data {
		rec[k] = v
	}
	return rec, nil
}

// checkField rejects names that cannot be written as document fields.
func (s *Store) checkField(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidField)
	}
	if s.config.isKeyAttr(name) {
		return fmt.Errorf("%w: %q is a key attribute", ErrInvalidField, name)
	}
	return nil
}

// keyString extracts a string key attribute from a raw item.
func (s *Store) keyString(raw map[string]types.AttributeValue, attr string) string {
	if v, ok := raw[attr].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// key returns the primary key for a document.
func (s *Store) key(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		s.config.CollectionAttr: &types.AttributeValueMemberS{Value: collection},
		s.config.IDAttr:         &types.AttributeValueMemberS{Value: id},
	}
}
