package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/pathstore/docpath"
	"github.com/jacentio/pathstore/internal/expr"
)

// batchDeleteSize is the BatchWriteItem request limit.
const batchDeleteSize = 25

// Store forwards path-addressed document operations to DynamoDB.
type Store struct {
	client API
	config Config
	logger *slog.Logger
}

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		logger: config.Logger,
	}
}

// Config returns the effective configuration, defaults applied.
func (s *Store) Config() Config {
	return s.config
}

// ReadOptions configures Get, List and Read.
type ReadOptions struct {
	// IDField overrides Config.IDField for the returned records.
	IDField string

	// Filters are AND-combined. Ignored for document paths.
	Filters []FieldFilter
}

// ReadResult is the outcome of Read. Exactly one of Document or Documents
// is meaningful, according to Kind.
type ReadResult struct {
	Kind docpath.Kind

	// Document is set for document paths. When the document does not exist it
	// holds only the id field and Found is false.
	Document Record
	Found    bool

	// Documents is set for collection paths, in ascending document id order.
	Documents []Record
}

// DeleteOptions configures delete behavior.
type DeleteOptions struct {
	// AllowCollection permits deleting every document of a collection path.
	AllowCollection bool
}

// parse validates raw and checks it addresses the wanted kind (0 accepts both).
func (s *Store) parse(op, raw string, want docpath.Kind) (docpath.Path, error) {
	p, err := docpath.Parse(raw)
	if err != nil {
		return docpath.Path{}, &OpError{Op: op, Path: raw, Err: err}
	}
	switch {
	case want == docpath.KindDocument && !p.IsDocument():
		return docpath.Path{}, &OpError{Op: op, Path: raw, Err: ErrNotDocument}
	case want == docpath.KindCollection && !p.IsCollection():
		return docpath.Path{}, &OpError{Op: op, Path: raw, Err: ErrNotCollection}
	}
	return p, nil
}

// Exists reports whether a document exists and carries every named field,
// or whether a collection holds at least one document. fieldNames is
// ignored for collection paths.
func (s *Store) Exists(ctx context.Context, path string, fieldNames ...string) (bool, error) {
	p, err := s.parse("exists", path, 0)
	if err != nil {
		return false, err
	}

	if p.IsDocument() {
		out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.config.Table),
			Key:            s.key(p.CollectionPath(), p.ID()),
			ConsistentRead: aws.Bool(s.config.ConsistentReads),
		})
		if err != nil {
			return false, &OpError{Op: "exists", Path: path, Err: err}
		}
		if out.Item == nil {
			return false, nil
		}
		for _, name := range fieldNames {
			if s.config.isKeyAttr(name) {
				return false, nil
			}
			if _, ok := out.Item[name]; !ok {
				return false, nil
			}
		}
		return true, nil
	}

	// Probe for a single item.
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(s.config.Table),
		KeyConditionExpression:   aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{"#pk": s.config.CollectionAttr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: p.String()},
		},
		ProjectionExpression: aws.String("#pk"),
		ConsistentRead:       aws.Bool(s.config.ConsistentReads),
		Limit:                aws.Int32(1),
	})
	if err != nil {
		return false, &OpError{Op: "exists", Path: path, Err: err}
	}
	return len(out.Items) > 0, nil
}

// Upsert merge-writes data into a document, creating it if absent.
// Fields not present in data are preserved.
func (s *Store) Upsert(ctx context.Context, path string, data map[string]any) error {
	p, err := s.parse("upsert", path, docpath.KindDocument)
	if err != nil {
		return err
	}
	item, err := s.encodeFields(data)
	if err != nil {
		return &OpError{Op: "upsert", Path: path, Err: err}
	}

	b := expr.New()
	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.Table),
		Key:       s.key(p.CollectionPath(), p.ID()),
	}
	if set := setClause(b, item); set != "" {
		input.UpdateExpression = aws.String(set)
	}
	input.ExpressionAttributeNames = b.Names()
	input.ExpressionAttributeValues = b.Values()

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return &OpError{Op: "upsert", Path: path, Err: err}
	}
	return nil
}

// Create writes data as a new document in a collection and returns its id.
// With an empty id a new one is generated and the write fails rather than
// overwrite an existing document; with an explicit id any existing document
// is replaced.
func (s *Store) Create(ctx context.Context, path string, data map[string]any, id string) (string, error) {
	p, err := s.parse("create", path, docpath.KindCollection)
	if err != nil {
		return "", err
	}

	generated := id == ""
	if generated {
		id = s.config.IDGenerator()
	}
	if _, err := p.Child(id); err != nil {
		return "", &OpError{Op: "create", Path: path, Err: err}
	}

	item, err := s.encodeFields(data)
	if err != nil {
		return "", &OpError{Op: "create", Path: path, Err: err}
	}
	for k, v := range s.key(p.String(), id) {
		item[k] = v
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.config.Table),
		Item:      item,
	}
	if generated {
		input.ConditionExpression = aws.String("attribute_not_exists(#pk)")
		input.ExpressionAttributeNames = map[string]string{"#pk": s.config.CollectionAttr}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		if generated && isConditionFailed(err) {
			err = fmt.Errorf("generated id %q already in use: %w", id, err)
		}
		return "", &OpError{Op: "create", Path: path, Err: err}
	}
	return id, nil
}

// Update writes only the given fields of an existing document.
// It returns ErrNotFound if the document does not exist.
func (s *Store) Update(ctx context.Context, path string, changes map[string]any) error {
	p, err := s.parse("update", path, docpath.KindDocument)
	if err != nil {
		return err
	}
	item, err := s.encodeFields(changes)
	if err != nil {
		return &OpError{Op: "update", Path: path, Err: err}
	}

	b := expr.New()
	b.BindName("#pk", s.config.CollectionAttr)
	input := &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.config.Table),
		Key:                 s.key(p.CollectionPath(), p.ID()),
		ConditionExpression: aws.String("attribute_exists(#pk)"),
	}
	if set := setClause(b, item); set != "" {
		input.UpdateExpression = aws.String(set)
	}
	input.ExpressionAttributeNames = b.Names()
	input.ExpressionAttributeValues = b.Values()

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return &OpError{Op: "update", Path: path, Err: notFoundOr(err)}
	}
	return nil
}

// Increment atomically adds delta to a numeric field of an existing
// document, creating the field if absent. Negative deltas decrement.
func (s *Store) Increment(ctx context.Context, path, field string, delta float64) error {
	p, err := s.parse("increment", path, docpath.KindDocument)
	if err != nil {
		return err
	}
	if err := s.checkField(field); err != nil {
		return &OpError{Op: "increment", Path: path, Err: err}
	}

	b := expr.New()
	b.BindName("#pk", s.config.CollectionAttr)
	update := fmt.Sprintf("ADD %s %s", b.Name(field), b.Value(&types.AttributeValueMemberN{
		Value: strconv.FormatFloat(delta, 'f', -1, 64),
	}))

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.config.Table),
		Key:                       s.key(p.CollectionPath(), p.ID()),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  b.Names(),
		ExpressionAttributeValues: b.Values(),
	})
	if err != nil {
		return &OpError{Op: "increment", Path: path, Err: notFoundOr(err)}
	}
	return nil
}

// Read dispatches to Get for document paths and List for collection paths.
func (s *Store) Read(ctx context.Context, path string, opts ReadOptions) (*ReadResult, error) {
	p, err := s.parse("read", path, 0)
	if err != nil {
		return nil, err
	}

	if p.IsDocument() {
		rec, found, err := s.Get(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		return &ReadResult{Kind: docpath.KindDocument, Document: rec, Found: found}, nil
	}

	recs, err := s.List(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	return &ReadResult{Kind: docpath.KindCollection, Documents: recs}, nil
}

// Get reads one document. A missing document is not an error: the returned
// record holds only the id field and found is false.
func (s *Store) Get(ctx context.Context, path string, opts ReadOptions) (rec Record, found bool, err error) {
	p, err := s.parse("get", path, docpath.KindDocument)
	if err != nil {
		return nil, false, err
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.Table),
		Key:            s.key(p.CollectionPath(), p.ID()),
		ConsistentRead: aws.Bool(s.config.ConsistentReads),
	})
	if err != nil {
		return nil, false, &OpError{Op: "get", Path: path, Err: err}
	}

	idField := s.idField(opts)
	if out.Item == nil {
		return Record{idField: p.ID()}, false, nil
	}
	rec, err = s.Decode(out.Item, idField)
	if err != nil {
		return nil, false, &OpError{Op: "get", Path: path, Err: err}
	}
	return rec, true, nil
}

// List returns every document of a collection matching all filters,
// ordered by document id. The result is never nil.
func (s *Store) List(ctx context.Context, path string, opts ReadOptions) ([]Record, error) {
	p, err := s.parse("list", path, docpath.KindCollection)
	if err != nil {
		return nil, err
	}

	b := expr.New()
	b.BindName("#pk", s.config.CollectionAttr)
	b.BindValue(":pk", &types.AttributeValueMemberS{Value: p.String()})
	filter, err := compileFilters(b, opts.Filters)
	if err != nil {
		return nil, &OpError{Op: "list", Path: path, Err: err}
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.Table),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		ExpressionAttributeNames:  b.Names(),
		ExpressionAttributeValues: b.Values(),
		ConsistentRead:            aws.Bool(s.config.ConsistentReads),
	}
	if filter != "" {
		input.FilterExpression = aws.String(filter)
	}

	idField := s.idField(opts)
	records := []Record{}
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &OpError{Op: "list", Path: path, Err: err}
		}
		for _, raw := range page.Items {
			rec, err := s.Decode(raw, idField)
			if err != nil {
				return nil, &OpError{Op: "list", Path: path, Err: err}
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

// Delete removes a document, or every document of a collection when
// opts.AllowCollection is set. Deleting a missing document succeeds.
// Subcollections of deleted documents are left in place.
func (s *Store) Delete(ctx context.Context, path string, opts DeleteOptions) error {
	p, err := s.parse("delete", path, 0)
	if err != nil {
		return err
	}

	if p.IsDocument() {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.config.Table),
			Key:       s.key(p.CollectionPath(), p.ID()),
		})
		if err != nil {
			return &OpError{Op: "delete", Path: path, Err: err}
		}
		s.logger.Info("document deleted", "path", path)
		return nil
	}

	if !opts.AllowCollection {
		return &OpError{Op: "delete", Path: path, Err: ErrCollectionDeleteDisabled}
	}

	keys, err := s.collectionKeys(ctx, p.String())
	if err != nil {
		return &OpError{Op: "delete", Path: path, Err: err}
	}
	if err := s.batchDelete(ctx, keys); err != nil {
		return &OpError{Op: "delete", Path: path, Err: err}
	}

	s.logger.Info("collection deleted", "path", path, "documents", len(keys))
	return nil
}

// collectionKeys lists the primary keys of every document in a collection.
func (s *Store) collectionKeys(ctx context.Context, collection string) ([]map[string]types.AttributeValue, error) {
	var keys []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.Table),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ProjectionExpression:   aws.String("#pk, #sk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": s.config.CollectionAttr,
			"#sk": s.config.IDAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: collection},
		},
		ConsistentRead: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list keys: %w", err)
		}
		for _, raw := range page.Items {
			keys = append(keys, s.key(collection, s.keyString(raw, s.config.IDAttr)))
		}
	}
	return keys, nil
}

// batchDelete deletes keys in BatchWriteItem-sized chunks.
func (s *Store) batchDelete(ctx context.Context, keys []map[string]types.AttributeValue) error {
	unprocessed := 0
	for start := 0; start < len(keys); start += batchDeleteSize {
		end := min(start+batchDeleteSize, len(keys))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, key := range keys[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})
		}

		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.config.Table: requests},
		})
		if err != nil {
			return fmt.Errorf("batch delete: %w", err)
		}
		unprocessed += len(out.UnprocessedItems[s.config.Table])
	}

	if unprocessed > 0 {
		return fmt.Errorf("%w: %d of %d documents unprocessed", ErrPartialDelete, unprocessed, len(keys))
	}
	return nil
}

func (s *Store) idField(opts ReadOptions) string {
	if opts.IDField != "" {
		return opts.IDField
	}
	return s.config.IDField
}

// setClause renders a SET expression for item with attribute names in
// sorted order. It returns "" for an empty item.
func setClause(b *expr.Builder, item map[string]types.AttributeValue) string {
	if len(item) == 0 {
		return ""
	}
	names := make([]string, 0, len(item))
	for name := range item {
		names = append(names, name)
	}
	sort.Strings(names)

	clauses := make([]string, len(names))
	for i, name := range names {
		clauses[i] = fmt.Sprintf("%s = %s", b.Name(name), b.Value(item[name]))
	}
	return "SET " + strings.Join(clauses, ", ")
}

func isConditionFailed(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}

// notFoundOr maps a failed attribute_exists guard to ErrNotFound.
func notFoundOr(err error) error {
	if isConditionFailed(err) {
		return ErrNotFound
	}
	return err
}
