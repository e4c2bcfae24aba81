package dynamock

import (
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"gopkg.in/yaml.v3"
)

// TableSpec describes a test table. It is usually loaded from YAML:
//
//	name: tracks
//	partitionKey: {name: artist_name, kind: S}
//	sortKey: {name: track_name, kind: S}
//	gsis:
//	  - name: GlobalGenreAndAlbumNameIndex
//	    partitionKey: {name: genre_name, kind: S}
//	    sortKey: {name: album_name, kind: S}
//	lsis:
//	  - name: LocalArtistAndAlbumNameIndex
//	    sortKey: {name: album_name, kind: S}
type TableSpec struct {
	Name         string      `yaml:"name" json:"name"`
	PartitionKey KeyDef      `yaml:"partitionKey" json:"partitionKey"`
	SortKey      *KeyDef     `yaml:"sortKey,omitempty" json:"sortKey,omitempty"`
	GSIs         []IndexSpec `yaml:"gsis,omitempty" json:"gsis,omitempty"`
	LSIs         []IndexSpec `yaml:"lsis,omitempty" json:"lsis,omitempty"`
}

// KeyDef describes a key attribute.
type KeyDef struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"` // "S", "N", or "B"
}

// IndexSpec describes a secondary index. Local indexes take the table's partition
// key and leave PartitionKey empty.
type IndexSpec struct {
	Name         string   `yaml:"name" json:"name"`
	PartitionKey KeyDef   `yaml:"partitionKey,omitempty" json:"partitionKey,omitempty"`
	SortKey      *KeyDef  `yaml:"sortKey,omitempty" json:"sortKey,omitempty"`
	Projection   string   `yaml:"projection,omitempty" json:"projection,omitempty"` // ALL (default), KEYS_ONLY or INCLUDE
	NonKey       []string `yaml:"nonKeyAttributes,omitempty" json:"nonKeyAttributes,omitempty"`
}

// LoadTableSpec reads a YAML table spec from path.
func LoadTableSpec(path string) (TableSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return TableSpec{}, fmt.Errorf("failed to open table spec: %w", err)
	}
	defer f.Close()
	return ReadTableSpec(f)
}

// ReadTableSpec decodes a YAML table spec.
func ReadTableSpec(r io.Reader) (TableSpec, error) {
	var spec TableSpec
	if err := yaml.NewDecoder(r).Decode(&spec); err != nil {
		return TableSpec{}, fmt.Errorf("failed to decode table spec: %w", err)
	}
	return spec, spec.Validate()
}

// Validate checks the spec has the fields DynamoDB requires.
func (s TableSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("table spec has no name")
	}
	if s.PartitionKey.Name == "" {
		return fmt.Errorf("table %s has no partition key", s.Name)
	}
	for _, gsi := range s.GSIs {
		if gsi.Name == "" || gsi.PartitionKey.Name == "" {
			return fmt.Errorf("table %s has a global index without name or partition key", s.Name)
		}
	}
	for _, lsi := range s.LSIs {
		if lsi.Name == "" || lsi.SortKey == nil {
			return fmt.Errorf("table %s has a local index without name or sort key", s.Name)
		}
		if s.SortKey == nil {
			return fmt.Errorf("table %s has local index %s but no sort key", s.Name, lsi.Name)
		}
	}
	return nil
}

// indexKeys returns the partition and sort key definitions of the named index, or of
// the table when name is empty.
func (s TableSpec) indexKeys(name string) (KeyDef, *KeyDef, bool) {
	if name == "" {
		return s.PartitionKey, s.SortKey, true
	}
	for _, gsi := range s.GSIs {
		if gsi.Name == name {
			return gsi.PartitionKey, gsi.SortKey, true
		}
	}
	for _, lsi := range s.LSIs {
		if lsi.Name == name {
			return s.PartitionKey, lsi.SortKey, true
		}
	}
	return KeyDef{}, nil, false
}

func keySchema(pk KeyDef, sk *KeyDef) []types.KeySchemaElement {
	ks := []types.KeySchemaElement{{AttributeName: aws.String(pk.Name), KeyType: types.KeyTypeHash}}
	if sk != nil {
		ks = append(ks, types.KeySchemaElement{AttributeName: aws.String(sk.Name), KeyType: types.KeyTypeRange})
	}
	return ks
}

func (s TableSpec) attributeDefinitions() []types.AttributeDefinition {
	var defs []types.AttributeDefinition
	seen := make(map[string]bool)
	add := func(k *KeyDef) {
		if k == nil || k.Name == "" || seen[k.Name] {
			return
		}
		seen[k.Name] = true
		kind := k.Kind
		if kind == "" {
			kind = string(types.ScalarAttributeTypeS)
		}
		defs = append(defs, types.AttributeDefinition{
			AttributeName: aws.String(k.Name),
			AttributeType: types.ScalarAttributeType(kind),
		})
	}
	add(&s.PartitionKey)
	add(s.SortKey)
	for _, gsi := range s.GSIs {
		add(&gsi.PartitionKey)
		add(gsi.SortKey)
	}
	for _, lsi := range s.LSIs {
		add(lsi.SortKey)
	}
	return defs
}

func (i IndexSpec) projection() *types.Projection {
	p := &types.Projection{ProjectionType: types.ProjectionTypeAll}
	if i.Projection != "" {
		p.ProjectionType = types.ProjectionType(i.Projection)
	}
	if len(i.NonKey) > 0 {
		p.NonKeyAttributes = i.NonKey
	}
	return p
}

// CreateTableInput builds the request that creates the table with on-demand billing.
func (s TableSpec) CreateTableInput() *dynamodb.CreateTableInput {
	input := &dynamodb.CreateTableInput{
		TableName:            aws.String(s.Name),
		AttributeDefinitions: s.attributeDefinitions(),
		KeySchema:            keySchema(s.PartitionKey, s.SortKey),
		BillingMode:          types.BillingModePayPerRequest,
	}
	for _, gsi := range s.GSIs {
		input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName:  aws.String(gsi.Name),
			KeySchema:  keySchema(gsi.PartitionKey, gsi.SortKey),
			Projection: gsi.projection(),
		})
	}
	for _, lsi := range s.LSIs {
		input.LocalSecondaryIndexes = append(input.LocalSecondaryIndexes, types.LocalSecondaryIndex{
			IndexName:  aws.String(lsi.Name),
			KeySchema:  keySchema(s.PartitionKey, lsi.SortKey),
			Projection: lsi.projection(),
		})
	}
	return input
}

// Description builds the table description DescribeTable returns for an active table.
func (s TableSpec) Description() *types.TableDescription {
	desc := &types.TableDescription{
		TableName:            aws.String(s.Name),
		TableStatus:          types.TableStatusActive,
		AttributeDefinitions: s.attributeDefinitions(),
		KeySchema:            keySchema(s.PartitionKey, s.SortKey),
	}
	for _, gsi := range s.GSIs {
		desc.GlobalSecondaryIndexes = append(desc.GlobalSecondaryIndexes, types.GlobalSecondaryIndexDescription{
			IndexName:   aws.String(gsi.Name),
			KeySchema:   keySchema(gsi.PartitionKey, gsi.SortKey),
			Projection:  gsi.projection(),
			IndexStatus: types.IndexStatusActive,
		})
	}
	for _, lsi := range s.LSIs {
		desc.LocalSecondaryIndexes = append(desc.LocalSecondaryIndexes, types.LocalSecondaryIndexDescription{
			IndexName:  aws.String(lsi.Name),
			KeySchema:  keySchema(s.PartitionKey, lsi.SortKey),
			Projection: lsi.projection(),
		})
	}
	return desc
}

// SpecFromCreateTable converts a CreateTable request back into a spec.
func SpecFromCreateTable(input *dynamodb.CreateTableInput) (TableSpec, error) {
	kinds := make(map[string]string)
	for _, def := range input.AttributeDefinitions {
		kinds[aws.ToString(def.AttributeName)] = string(def.AttributeType)
	}
	keys := func(ks []types.KeySchemaElement) (KeyDef, *KeyDef) {
		var pk KeyDef
		var sk *KeyDef
		for _, el := range ks {
			name := aws.ToString(el.AttributeName)
			def := KeyDef{Name: name, Kind: kinds[name]}
			if el.KeyType == types.KeyTypeRange {
				sk = &def
			} else {
				pk = def
			}
		}
		return pk, sk
	}

	spec := TableSpec{Name: aws.ToString(input.TableName)}
	spec.PartitionKey, spec.SortKey = keys(input.KeySchema)
	for _, gsi := range input.GlobalSecondaryIndexes {
		pk, sk := keys(gsi.KeySchema)
		idx := IndexSpec{Name: aws.ToString(gsi.IndexName), PartitionKey: pk, SortKey: sk}
		if gsi.Projection != nil {
			idx.Projection, idx.NonKey = string(gsi.Projection.ProjectionType), gsi.Projection.NonKeyAttributes
		}
		spec.GSIs = append(spec.GSIs, idx)
	}
	for _, lsi := range input.LocalSecondaryIndexes {
		_, sk := keys(lsi.KeySchema)
		idx := IndexSpec{Name: aws.ToString(lsi.IndexName), SortKey: sk}
		if lsi.Projection != nil {
			idx.Projection, idx.NonKey = string(lsi.Projection.ProjectionType), lsi.Projection.NonKeyAttributes
		}
		spec.LSIs = append(spec.LSIs, idx)
	}
	return spec, spec.Validate()
}
