package dynamodel

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Client is the subset of *dynamodb.Client a Table uses.
type Client interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// Options configures a Table.
type Options struct {
	Logger    *slog.Logger // Request logger. Default discards.
	Paginator Paginator    // Continuation token codec. Default EncodedPaginator.
}

// WithLogger sets the logger a table reports requests and store failures to.
func WithLogger(l *slog.Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}

// WithPaginator sets how continuation tokens are generated and resolved.
func WithPaginator(p Paginator) func(*Options) {
	return func(o *Options) { o.Paginator = p }
}

func newOptions(opts []func(*Options)) Options {
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.Paginator == nil {
		options.Paginator = EncodedPaginator{}
	}
	return options
}
