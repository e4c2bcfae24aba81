package dynamodel

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// pager fetches one page of rows per call.
type pager interface {
	HasMorePages() bool
	nextPage(ctx context.Context) (rows []map[string]types.AttributeValue, lastKey map[string]types.AttributeValue, err error)
}

type queryPager struct{ *dynamodb.QueryPaginator }

func (p queryPager) nextPage(ctx context.Context) ([]map[string]types.AttributeValue, map[string]types.AttributeValue, error) {
	out, err := p.NextPage(ctx)
	if err != nil {
		return nil, nil, err
	}
	return out.Items, out.LastEvaluatedKey, nil
}

type scanPager struct{ *dynamodb.ScanPaginator }

func (p scanPager) nextPage(ctx context.Context) ([]map[string]types.AttributeValue, map[string]types.AttributeValue, error) {
	out, err := p.NextPage(ctx)
	if err != nil {
		return nil, nil, err
	}
	return out.Items, out.LastEvaluatedKey, nil
}

// Cursor iterates over the rows of a query or scan, fetching one page per round trip
// as iteration reaches it. Rows are yielded in store order as CLEAN items. A Cursor
// is single-pass; run the query again to restart.
//
//	cur, err := table.Query(ctx, album.Equal("Let There Be Rock"))
//	for cur.Next() {
//		item := cur.Item()
//	}
//	if err := cur.Err(); err != nil {
//		...
//	}
type Cursor struct {
	ctx     context.Context
	pages   pager
	schema  *Schema
	keys    []string // key attributes of the table and the queried index
	op      string
	expr    string
	logger  *slog.Logger
	tokens  Paginator
	rows    []map[string]types.AttributeValue
	pos     int
	lastKey map[string]types.AttributeValue
	start   map[string]types.AttributeValue
	fetched bool
	item    *Item
	err     error
}

// Next advances to the next item, fetching the next page when the current one is
// exhausted. It returns false when there are no more items or an error occurred.
func (c *Cursor) Next() bool {
	c.item = nil
	if c.err != nil {
		return false
	}
	for c.pos >= len(c.rows) {
		if !c.pages.HasMorePages() {
			return false
		}
		rows, lastKey, err := c.pages.nextPage(c.ctx)
		if err != nil {
			c.logger.WarnContext(c.ctx, "page request failed", "op", c.op, "expression", c.expr, "error", err)
			c.err = (&Error{
				Kind:       ErrQuery,
				Op:         c.op,
				Message:    fmt.Sprintf("request %q failed: %s", c.expr, storeMessage(err)),
				Validation: isValidationError(err),
			}).withCause(err)
			return false
		}
		c.logger.DebugContext(c.ctx, "fetched page", "op", c.op, "count", len(rows), "more", len(lastKey) > 0)
		c.rows, c.pos, c.lastKey, c.fetched = rows, 0, lastKey, true
	}

	item, err := c.schema.Hydrate(c.rows[c.pos])
	c.pos++
	if err != nil {
		c.err = newError(ErrQuery, c.op, "failed to hydrate row").withCause(err)
		return false
	}
	c.item = item
	return true
}

// Item returns the item Next advanced to.
func (c *Cursor) Item() *Item { return c.item }

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error { return c.err }

// All drains the cursor.
func (c *Cursor) All() ([]*Item, error) {
	var items []*Item
	for c.Next() {
		items = append(items, c.Item())
	}
	return items, c.Err()
}

// Items returns an iterator over the remaining items. An error ends the sequence as
// its final element.
func (c *Cursor) Items() iter.Seq2[*Item, error] {
	return func(yield func(*Item, error) bool) {
		for c.Next() {
			if !yield(c.Item(), nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Token returns an opaque token that resumes iteration after the last item Next
// returned, for use with WithStartToken. It is empty once the results are exhausted.
// The table's Paginator generates it.
func (c *Cursor) Token() (string, error) {
	var key map[string]types.AttributeValue
	switch {
	case !c.fetched:
		key = c.start
	case c.pos < len(c.rows):
		// mid-page: resume from the last yielded row
		row := c.rows[c.pos-1]
		key = make(map[string]types.AttributeValue, len(c.keys))
		for _, k := range c.keys {
			if av, ok := row[k]; ok {
				key[k] = av
			}
		}
	default:
		key = c.lastKey
	}
	return c.tokens.PageCursor(c.ctx, key)
}
