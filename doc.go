// Package dynamodel maps Go values to DynamoDB items and compiles conditions into
// the DynamoDB expression language, on top of the AWS SDK for Go v2 client.
//
// # Key Concepts
//
// A Schema is the ordered list of attributes an item type declares. Each Attribute
// knows its wire category (AttributeType) and converts values both ways:
// Extract produces exactly one AttributeValue member, Hydrate turns it back into
// the declared Go type. Numbers are rendered as decimal strings through a
// NumberCodec so that fractional values survive the round trip unchanged.
//
// An Item holds attribute values and tracks writes. Items built by the caller are
// NEW; items read from the table are CLEAN. Writes record one pending Change per
// attribute, and Table.Update turns the pending changes into a single update
// expression.
//
// A Table binds a schema to an existing table. Its key schema and indexes are read
// once with DescribeTable.
//
// # Basic Usage
//
//	type Track struct {
//	    ArtistName string `dynamodbav:"artist_name"`
//	    TrackName  string `dynamodbav:"track_name"`
//	    AlbumName  string `dynamodbav:"album_name"`
//	    GenreName  string `dynamodbav:"genre_name"`
//	}
//
//	schema := dynamodel.MustSchema(dynamodel.SchemaFor[Track]())
//	tracks, err := dynamodel.New(ctx, ddb, "tracks", schema)
//
//	item, err := schema.NewItem(Track{ArtistName: "AC/DC", TrackName: "Overdose"})
//	ok, err := tracks.Put(ctx, item, schema.Attr("artist_name").NotExists())
//
//	item.Set("album_name", "Let There Be Rock")
//	ok, err = tracks.Update(ctx, item) // SET album_name = :album_name
//
// # Querying
//
// Conditions are built from attribute descriptors and composed with And, Or and
// Not. Query picks the index from the key condition unless one is named:
//
//	album := schema.Attr("album_name")
//	cur, err := tracks.Query(ctx, album.Equal("Let There Be Rock"),
//	    dynamodel.WithFilter(schema.Attr("track_name").BeginsWith("B")))
//	for item, err := range cur.Items() {
//	    ...
//	}
//
// # Pagination
//
// A Cursor fetches one page per round trip as iteration reaches it. Cursor.Token
// returns a continuation token that WithStartToken accepts to resume a later query.
package dynamodel
