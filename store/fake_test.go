package store_test

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/pathstore/store"
)

// fakeDB is an in-memory store.API. It understands the expression shapes
// Store emits: "#pk = :pk" key conditions, attribute_(not_)exists guards,
// "SET a = b, ..." and "ADD a b" updates, and AND-ed equality filters.
type fakeDB struct {
	mu       sync.Mutex
	pkAttr   string
	skAttr   string
	items    map[string]map[string]map[string]types.AttributeValue
	calls    map[string]int
	errs     map[string]error
	pageSize int

	// unprocessed is the number of delete requests per batch reported back
	// as UnprocessedItems.
	unprocessed int

	lastUpdate *dynamodb.UpdateItemInput
	lastPut    *dynamodb.PutItemInput
	lastQuery  *dynamodb.QueryInput
}

var _ store.API = (*fakeDB)(nil)

func newFakeDB() *fakeDB {
	cfg := store.DefaultConfig()
	return &fakeDB{
		pkAttr: cfg.CollectionAttr,
		skAttr: cfg.IDAttr,
		items:  make(map[string]map[string]map[string]types.AttributeValue),
		calls:  make(map[string]int),
		errs:   make(map[string]error),
	}
}

func (f *fakeDB) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls["PutItem"] + f.calls["UpdateItem"] + f.calls["DeleteItem"] + f.calls["BatchWriteItem"]
}

func (f *fakeDB) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeDB) count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items[collection])
}

func (f *fakeDB) seed(collection, id string, fields map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := map[string]types.AttributeValue{
		f.pkAttr: &types.AttributeValueMemberS{Value: collection},
		f.skAttr: &types.AttributeValueMemberS{Value: id},
	}
	for k, v := range fields {
		item[k] = v
	}
	f.put(item)
}

func (f *fakeDB) raw(collection, id string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[collection][id]
}

func (f *fakeDB) enter(op string) error {
	f.calls[op]++
	return f.errs[op]
}

func (f *fakeDB) keyOf(key map[string]types.AttributeValue) (string, string) {
	return str(key[f.pkAttr]), str(key[f.skAttr])
}

func (f *fakeDB) put(item map[string]types.AttributeValue) {
	pk, sk := f.keyOf(item)
	if f.items[pk] == nil {
		f.items[pk] = make(map[string]map[string]types.AttributeValue)
	}
	f.items[pk][sk] = item
}

func (f *fakeDB) get(key map[string]types.AttributeValue) map[string]types.AttributeValue {
	pk, sk := f.keyOf(key)
	return f.items[pk][sk]
}

func (f *fakeDB) checkCondition(cond *string, names map[string]string, existing map[string]types.AttributeValue) error {
	if cond == nil {
		return nil
	}
	switch *cond {
	case "attribute_exists(#pk)":
		if existing == nil {
			return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	case "attribute_not_exists(#pk)":
		if existing != nil {
			return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	default:
		return fmt.Errorf("fakeDB: unsupported condition %q", *cond)
	}
	if names["#pk"] != f.pkAttr {
		return fmt.Errorf("fakeDB: #pk bound to %q", names["#pk"])
	}
	return nil
}

func (f *fakeDB) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetItem"); err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: copyItem(f.get(in.Key))}, nil
}

func (f *fakeDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPut = in
	if err := f.enter("PutItem"); err != nil {
		return nil, err
	}
	if err := f.checkCondition(in.ConditionExpression, in.ExpressionAttributeNames, f.get(in.Item)); err != nil {
		return nil, err
	}
	f.put(copyItem(in.Item))
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDB) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUpdate = in
	if err := f.enter("UpdateItem"); err != nil {
		return nil, err
	}
	existing := f.get(in.Key)
	if err := f.checkCondition(in.ConditionExpression, in.ExpressionAttributeNames, existing); err != nil {
		return nil, err
	}

	item := copyItem(existing)
	if item == nil {
		item = copyItem(in.Key)
	}

	if in.UpdateExpression != nil {
		update := *in.UpdateExpression
		switch {
		case strings.HasPrefix(update, "SET "):
			for _, clause := range strings.Split(strings.TrimPrefix(update, "SET "), ", ") {
				parts := strings.SplitN(clause, " = ", 2)
				if len(parts) != 2 {
					return nil, fmt.Errorf("fakeDB: bad SET clause %q", clause)
				}
				item[in.ExpressionAttributeNames[parts[0]]] = in.ExpressionAttributeValues[parts[1]]
			}
		case strings.HasPrefix(update, "ADD "):
			parts := strings.Fields(strings.TrimPrefix(update, "ADD "))
			if len(parts) != 2 {
				return nil, fmt.Errorf("fakeDB: bad ADD clause %q", update)
			}
			name := in.ExpressionAttributeNames[parts[0]]
			delta, _ := strconv.ParseFloat(num(in.ExpressionAttributeValues[parts[1]]), 64)
			current := 0.0
			if v, ok := item[name]; ok {
				n, isNum := v.(*types.AttributeValueMemberN)
				if !isNum {
					return nil, fmt.Errorf("fakeDB: ADD on non-number %q", name)
				}
				current, _ = strconv.ParseFloat(n.Value, 64)
			}
			item[name] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(current+delta, 'f', -1, 64)}
		default:
			return nil, fmt.Errorf("fakeDB: unsupported update %q", update)
		}
	}

	f.put(item)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDB) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteItem"); err != nil {
		return nil, err
	}
	pk, sk := f.keyOf(in.Key)
	delete(f.items[pk], sk)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDB) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = in
	if err := f.enter("Query"); err != nil {
		return nil, err
	}
	if aws.ToString(in.KeyConditionExpression) != "#pk = :pk" {
		return nil, fmt.Errorf("fakeDB: unsupported key condition %q", aws.ToString(in.KeyConditionExpression))
	}
	collection := str(in.ExpressionAttributeValues[":pk"])

	var filters [][2]string
	if in.FilterExpression != nil {
		for _, clause := range strings.Split(*in.FilterExpression, " AND ") {
			clause = strings.TrimSuffix(strings.TrimPrefix(clause, "("), ")")
			parts := strings.SplitN(clause, " = ", 2)
			if len(parts) != 2 || strings.Contains(parts[0], ".") {
				return nil, fmt.Errorf("fakeDB: unsupported filter clause %q", clause)
			}
			filters = append(filters, [2]string{in.ExpressionAttributeNames[parts[0]], parts[1]})
		}
	}

	ids := make([]string, 0, len(f.items[collection]))
	for id := range f.items[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := ""
	if in.ExclusiveStartKey != nil {
		start = str(in.ExclusiveStartKey[f.skAttr])
	}

	limit := f.pageSize
	if in.Limit != nil && (limit == 0 || int(*in.Limit) < limit) {
		limit = int(*in.Limit)
	}

	out := &dynamodb.QueryOutput{}
	for _, id := range ids {
		if start != "" && id <= start {
			continue
		}
		if limit > 0 && out.ScannedCount >= int32(limit) {
			out.LastEvaluatedKey = map[string]types.AttributeValue{
				f.pkAttr: &types.AttributeValueMemberS{Value: collection},
				f.skAttr: &types.AttributeValueMemberS{Value: start},
			}
			break
		}
		item := f.items[collection][id]
		start = id
		out.ScannedCount++
		if matches(item, filters, in.ExpressionAttributeValues) {
			out.Items = append(out.Items, copyItem(item))
		}
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

func (f *fakeDB) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("BatchWriteItem"); err != nil {
		return nil, err
	}
	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, requests := range in.RequestItems {
		if len(requests) > 25 {
			return nil, fmt.Errorf("fakeDB: batch of %d exceeds 25", len(requests))
		}
		for i, req := range requests {
			if i >= len(requests)-f.unprocessed {
				out.UnprocessedItems[table] = append(out.UnprocessedItems[table], req)
				continue
			}
			pk, sk := f.keyOf(req.DeleteRequest.Key)
			delete(f.items[pk], sk)
		}
	}
	return out, nil
}

func matches(item map[string]types.AttributeValue, filters [][2]string, values map[string]types.AttributeValue) bool {
	for _, flt := range filters {
		got, ok := item[flt[0]]
		if !ok || !sameScalar(got, values[flt[1]]) {
			return false
		}
	}
	return true
}

func sameScalar(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return false
		}
		x, _ := strconv.ParseFloat(av.Value, 64)
		y, _ := strconv.ParseFloat(bv.Value, 64)
		return x == y
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func str(v types.AttributeValue) string {
	if s, ok := v.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func num(v types.AttributeValue) string {
	if n, ok := v.(*types.AttributeValueMemberN); ok {
		return n.Value
	}
	return ""
}
