// Package store provides path-addressed document operations on DynamoDB.
//
// Documents and collections are addressed by slash-delimited paths. A path
// with an even number of segments names a document, an odd number names a
// collection:
//
//	users                  collection
//	users/alice            document
//	users/alice/orders     collection (subcollection of users/alice)
//
// # Table Layout
//
// Every document is one item in a single table. The partition key
// ([Config.CollectionAttr]) holds the collection path and the sort key
// ([Config.IDAttr]) holds the document id. All other attributes are the
// document's fields. The table needs no secondary indexes:
//
//	aws dynamodb create-table --table-name pathstore_documents \
//	    --attribute-definitions AttributeName=_collection,AttributeType=S AttributeName=_id,AttributeType=S \
//	    --key-schema AttributeName=_collection,KeyType=HASH AttributeName=_id,KeyType=RANGE \
//	    --billing-mode PAY_PER_REQUEST
//
// # Operations
//
//   - [Store.Exists] - document (optionally with required fields) or non-empty collection
//   - [Store.Upsert] - merge-write a document
//   - [Store.Create] - add a document to a collection, generated or explicit id
//   - [Store.Update] - partial write of an existing document
//   - [Store.Read], [Store.Get], [Store.List] - read a document or query a collection
//   - [Store.Delete] - delete a document, or a whole collection when allowed
//   - [Store.Increment] - atomic numeric add
//
// [Lenient] wraps a Store for callers that prefer false/nil/empty results
// over errors.
//
// # Errors
//
// Every error is an [*OpError] naming the operation and path. Use [KindOf]
// or errors.Is with the sentinels:
//
//   - [ErrInvalidPath] - path is empty or malformed
//   - [ErrNotDocument], [ErrNotCollection] - path addresses the wrong kind
//   - [ErrNotFound] - update or increment of a missing document
//   - [ErrCollectionDeleteDisabled] - collection delete without AllowCollection
//   - [ErrInvalidField], [ErrInvalidQuery] - request rejected before any remote call
//   - [ErrPartialDelete] - batched collection delete left items behind
package store
