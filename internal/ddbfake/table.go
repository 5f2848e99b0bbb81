// Package ddbfake is an in-memory stand-in for a single DynamoDB table.
//
// It understands the subset of the API the favorites store uses: point reads,
// key-condition queries on the table and on global secondary indexes (with
// Limit, ExclusiveStartKey, ScanIndexForward, Select COUNT and simple
// projections), SET-only update expressions, and condition expressions built
// from attribute_exists, attribute_not_exists and equality joined by AND.
// TransactWriteItems takes Put and Delete actions, is all-or-nothing and
// reports per-item cancellation reasons the way DynamoDB does.
package ddbfake

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type index struct {
	hash string
	rnge string
}

// Table is a thread-safe in-memory table with string PK/SK keys.
type Table struct {
	mu       sync.Mutex
	name     string
	indexes  map[string]index
	items    map[string]map[string]types.AttributeValue
	failures map[string][]error
	calls    map[string]int
}

// New creates an empty table. indexName, if not empty, declares a global
// secondary index keyed on GSI1PK/GSI1SK.
func New(name, indexName string) *Table {
	t := &Table{
		name:     name,
		indexes:  make(map[string]index),
		items:    make(map[string]map[string]types.AttributeValue),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
	if indexName != "" {
		t.indexes[indexName] = index{hash: "GSI1PK", rnge: "GSI1SK"}
	}
	return t
}

// FailNext makes the next call to op (e.g. "Query") return err.
func (t *Table) FailNext(op string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[op] = append(t.failures[op], err)
}

// Calls returns how many times op has been invoked.
func (t *Table) Calls(op string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[op]
}

// Len returns the number of stored items.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Item returns a copy of the item stored under (pk, sk), or nil.
func (t *Table) Item(pk, sk string) map[string]types.AttributeValue {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[storageKey(pk, sk)]
	if !ok {
		return nil
	}
	return copyItem(item)
}

// Seed stores item unconditionally.
func (t *Table) Seed(item map[string]types.AttributeValue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[itemStorageKey(item)] = copyItem(item)
}

// Remove deletes (pk, sk) unconditionally, bypassing transactions.
func (t *Table) Remove(pk, sk string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, storageKey(pk, sk))
}

// begin records a call and returns any injected failure. Callers hold t.mu.
func (t *Table) begin(op string, table *string) error {
	t.calls[op]++
	if errs := t.failures[op]; len(errs) > 0 {
		t.failures[op] = errs[1:]
		return errs[0]
	}
	if aws.ToString(table) != t.name {
		return &types.ResourceNotFoundException{Message: aws.String("Requested resource not found: " + aws.ToString(table))}
	}
	return nil
}

// GetItem implements the DynamoDB GetItem call.
func (t *Table) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("GetItem", in.TableName); err != nil {
		return nil, err
	}
	k, err := keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	out := &dynamodb.GetItemOutput{}
	if item, ok := t.items[k]; ok {
		out.Item = copyItem(item)
	}
	return out, nil
}

// DeleteItem implements the DynamoDB DeleteItem call.
func (t *Table) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("DeleteItem", in.TableName); err != nil {
		return nil, err
	}
	k, err := keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(aws.ToString(in.ConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues, t.items[k])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}
	delete(t.items, k)
	return &dynamodb.DeleteItemOutput{}, nil
}

// UpdateItem implements the DynamoDB UpdateItem call for SET expressions.
func (t *Table) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("UpdateItem", in.TableName); err != nil {
		return nil, err
	}
	k, err := keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	current := t.items[k]
	ok, err := evalCondition(aws.ToString(in.ConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues, current)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}
	next, err := applyUpdate(current, in.Key, aws.ToString(in.UpdateExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	t.items[k] = next

	out := &dynamodb.UpdateItemOutput{}
	if in.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = copyItem(next)
	}
	return out, nil
}

// TransactWriteItems applies every action or none of them.
func (t *Table) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls["TransactWriteItems"]++
	if errs := t.failures["TransactWriteItems"]; len(errs) > 0 {
		t.failures["TransactWriteItems"] = errs[1:]
		return nil, errs[0]
	}

	actions := make([]func(), 0, len(in.TransactItems))
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	seen := make(map[string]bool)
	cancelled := false

	for i, ti := range in.TransactItems {
		var (
			table  *string
			key    map[string]types.AttributeValue
			cond   *string
			names  map[string]string
			values map[string]types.AttributeValue
			apply  func(k string)
		)
		switch {
		case ti.Put != nil:
			table, key, cond, names, values = ti.Put.TableName, ti.Put.Item, ti.Put.ConditionExpression, ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues
			item := ti.Put.Item
			apply = func(k string) { t.items[k] = copyItem(item) }
		case ti.Delete != nil:
			table, key, cond, names, values = ti.Delete.TableName, ti.Delete.Key, ti.Delete.ConditionExpression, ti.Delete.ExpressionAttributeNames, ti.Delete.ExpressionAttributeValues
			apply = func(k string) { delete(t.items, k) }
		default:
			return nil, validationError("transaction item %d: only Put and Delete are supported", i)
		}

		if aws.ToString(table) != t.name {
			return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found: " + aws.ToString(table))}
		}
		k, err := keyOf(key)
		if err != nil {
			return nil, err
		}
		if seen[k] {
			return nil, validationError("Transaction request cannot include multiple operations on one item")
		}
		seen[k] = true

		ok, err := evalCondition(aws.ToString(cond), names, values, t.items[k])
		if err != nil {
			return nil, err
		}
		if ok {
			reasons[i] = types.CancellationReason{Code: aws.String("None")}
		} else {
			reasons[i] = types.CancellationReason{
				Code:    aws.String("ConditionalCheckFailed"),
				Message: aws.String("The conditional request failed"),
			}
			cancelled = true
		}
		target, fn := k, apply
		actions = append(actions, func() { fn(target) })
	}

	if cancelled {
		codes := make([]string, len(reasons))
		for i, r := range reasons {
			codes[i] = aws.ToString(r.Code)
		}
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons [" + strings.Join(codes, ", ") + "]"),
			CancellationReasons: reasons,
		}
	}
	for _, apply := range actions {
		apply()
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// Query implements key-condition queries on the table or a declared index.
func (t *Table) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("Query", in.TableName); err != nil {
		return nil, err
	}

	hashAttr, rangeAttr := "PK", "SK"
	indexName := aws.ToString(in.IndexName)
	if indexName != "" {
		idx, ok := t.indexes[indexName]
		if !ok {
			return nil, validationError("The table does not have the specified index: %s", indexName)
		}
		hashAttr, rangeAttr = idx.hash, idx.rnge
	}

	kc, err := parseKeyCondition(aws.ToString(in.KeyConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues, hashAttr, rangeAttr)
	if err != nil {
		return nil, err
	}

	var matched []map[string]types.AttributeValue
	for _, item := range t.items {
		h, ok := stringAttr(item, hashAttr)
		if !ok || h != kc.hash {
			continue
		}
		r, ok := stringAttr(item, rangeAttr)
		if !ok || !kc.matchRange(r) {
			continue
		}
		matched = append(matched, item)
	}

	sortKey := func(item map[string]types.AttributeValue) []string {
		r, _ := stringAttr(item, rangeAttr)
		pk, _ := stringAttr(item, "PK")
		sk, _ := stringAttr(item, "SK")
		return []string{r, pk, sk}
	}
	forward := in.ScanIndexForward == nil || *in.ScanIndexForward
	sort.Slice(matched, func(i, j int) bool {
		c := compareKeys(sortKey(matched[i]), sortKey(matched[j]))
		if forward {
			return c < 0
		}
		return c > 0
	})

	if in.ExclusiveStartKey != nil {
		start := sortKey(in.ExclusiveStartKey)
		if indexName == "" {
			start = start[:1]
		}
		i := 0
		for ; i < len(matched); i++ {
			cur := sortKey(matched[i])[:len(start)]
			c := compareKeys(cur, start)
			if (forward && c > 0) || (!forward && c < 0) {
				break
			}
		}
		matched = matched[i:]
	}

	out := &dynamodb.QueryOutput{}
	if in.Limit != nil && int(*in.Limit) < len(matched) {
		matched = matched[:*in.Limit]
	}
	if in.Limit != nil && len(matched) == int(*in.Limit) && len(matched) > 0 {
		last := matched[len(matched)-1]
		lek := map[string]types.AttributeValue{"PK": last["PK"], "SK": last["SK"]}
		if indexName != "" {
			lek[hashAttr] = last[hashAttr]
			lek[rangeAttr] = last[rangeAttr]
		}
		out.LastEvaluatedKey = lek
	}

	out.Count = int32(len(matched))
	out.ScannedCount = out.Count
	if in.Select == types.SelectCount {
		return out, nil
	}
	projection := projectionNames(aws.ToString(in.ProjectionExpression), in.ExpressionAttributeNames)
	for _, item := range matched {
		out.Items = append(out.Items, project(item, projection))
	}
	return out, nil
}

// CreateTable records the table name; the schema is fixed at New.
func (t *Table) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls["CreateTable"]++
	if aws.ToString(in.TableName) == t.name {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists: " + t.name)}
	}
	t.name = aws.ToString(in.TableName)
	for _, gsi := range in.GlobalSecondaryIndexes {
		idx := index{}
		for _, ks := range gsi.KeySchema {
			if ks.KeyType == types.KeyTypeHash {
				idx.hash = aws.ToString(ks.AttributeName)
			} else {
				idx.rnge = aws.ToString(ks.AttributeName)
			}
		}
		t.indexes[aws.ToString(gsi.IndexName)] = idx
	}
	return &dynamodb.CreateTableOutput{
		TableDescription: &types.TableDescription{TableName: in.TableName, TableStatus: types.TableStatusCreating},
	}, nil
}

// DescribeTable reports the table as active.
func (t *Table) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("DescribeTable", in.TableName); err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{TableName: in.TableName, TableStatus: types.TableStatusActive},
	}, nil
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func validationError(format string, args ...any) error {
	return &fakeAPIError{code: "ValidationException", message: fmt.Sprintf(format, args...)}
}
