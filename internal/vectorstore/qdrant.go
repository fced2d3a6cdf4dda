package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Reserved payload keys. Namespaces are implemented as a payload key plus a
// mandatory filter clause on every operation, so user metadata may not use
// these names.
const (
	payloadKeyID        = "id"
	payloadKeyNamespace = "namespace"
)

// recordIDSpace is the UUID v5 namespace for deriving stable point ids from
// (namespace, record id) pairs. Records are addressed by string id at the
// API boundary; Qdrant requires UUID point ids.
var recordIDSpace = uuid.MustParse("0aa8cbb9-6a75-4f5a-9b0c-1d94c2a4f7e3")

// QdrantConfig holds configuration for the Qdrant-backed store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string `koanf:"host"`

	// Port is the Qdrant gRPC port (not the HTTP REST port).
	// Default: 6334
	Port int `koanf:"port"`

	// Collection is the collection all namespaces live in.
	// Default: "vectorsync"
	Collection string `koanf:"collection"`

	// APIKey is the optional API key. Empty for local development.
	APIKey string `koanf:"api_key"`

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool `koanf:"use_tls"`

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int `koanf:"max_message_size"`

	// DialTimeout bounds the initial connection health check.
	// Default: 5s
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "vectorsync"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// QdrantStore implements Store (and the Lister capability, via Qdrant's
// scroll API) over the native gRPC client. It performs single calls with no
// retry; the Client layers resilience on top.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

var (
	_ Store  = (*QdrantStore)(nil)
	_ Lister = (*QdrantStore)(nil)
)

// NewQdrantStore connects to Qdrant, verifies health, and ensures the
// collection exists with the fixed vector dimension.
func NewQdrantStore(ctx context.Context, config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	qcfg := &qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	}
	if !config.UseTLS {
		qcfg.GrpcOptions = append(qcfg.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{client: client, config: config, logger: logger}

	dialCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()

	if err := s.HealthCheck(dialCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	if err := s.ensureCollection(dialCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ensuring collection: %w", err)
	}

	logger.Info("qdrant connection established",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
	)

	return s, nil
}

// ensureCollection creates the collection if it does not exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     Dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		// Lost a create race with another process.
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}

	s.logger.Info("created collection",
		zap.String("collection", s.config.Collection),
		zap.Int("dimension", Dimension),
	)
	return nil
}

// Upsert writes records into a namespace.
func (s *QdrantStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, rec := range records {
		payload, err := toPayload(namespace, rec)
		if err != nil {
			return err
		}
		points[i] = &qdrant.PointStruct{
			Id:      pointID(namespace, rec.ID),
			Vectors: qdrant.NewVectors(rec.Values...),
			Payload: payload,
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upserting %d points: %w", len(points), err)
	}
	return nil
}

// Query returns the nearest records to vector within a namespace.
func (s *QdrantStore) Query(ctx context.Context, namespace string, vector []float32, opts QueryOptions) ([]Match, error) {
	opts.ApplyDefaults()
	if err := opts.Filter.Validate(); err != nil {
		return nil, err
	}

	filter, err := toQdrantFilter(namespace, opts.Filter)
	if err != nil {
		return nil, err
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(opts.TopK)),
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(opts.IncludeMetadata),
		WithVectors:    qdrant.NewWithVectors(opts.IncludeValues),
	})
	if err != nil {
		return nil, fmt.Errorf("querying namespace %s: %w", namespace, err)
	}

	matches := make([]Match, 0, len(results))
	for _, p := range results {
		id, metadata := fromPayload(p.GetPayload())
		m := Match{ID: id, Score: p.GetScore(), Metadata: metadata}
		if opts.IncludeValues {
			m.Values = p.GetVectors().GetVector().GetData()
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Fetch returns records by id. Missing ids are absent from the result.
func (s *QdrantStore) Fetch(ctx context.Context, namespace string, ids []string) (map[string]Record, error) {
	if len(ids) == 0 {
		return map[string]Record{}, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(namespace, id)
	}

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.config.Collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %d points: %w", len(ids), err)
	}

	records := make(map[string]Record, len(points))
	for _, p := range points {
		id, metadata := fromPayload(p.GetPayload())
		if id == "" {
			continue
		}
		records[id] = Record{
			ID:        id,
			Values:    p.GetVectors().GetVector().GetData(),
			Metadata:  metadata,
			Namespace: namespace,
		}
	}
	return records, nil
}

// Delete removes records by id.
func (s *QdrantStore) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(namespace, id)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.config.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("deleting %d points: %w", len(ids), err)
	}
	return nil
}

// ListIDs implements the Lister capability natively via Qdrant's scroll API.
func (s *QdrantStore) ListIDs(ctx context.Context, namespace string, filter *Filter, limit int) ([]string, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	qf, err := toQdrantFilter(namespace, filter)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}

	var ids []string
	var offset *qdrant.PointId
	for len(ids) < limit {
		page := min(256, limit-len(ids))
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.config.Collection,
			Filter:         qf,
			Limit:          qdrant.PtrOf(uint32(page)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("scrolling namespace %s: %w", namespace, err)
		}
		if len(points) == 0 {
			break
		}
		for _, p := range points {
			if id, _ := fromPayload(p.GetPayload()); id != "" {
				ids = append(ids, id)
			}
		}
		offset = points[len(points)-1].GetId()
		if len(points) < page {
			break
		}
	}
	return ids, nil
}

// HealthCheck verifies the store is reachable.
func (s *QdrantStore) HealthCheck(ctx context.Context) error {
	_, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// pointID derives a stable UUID point id from a (namespace, record id) pair.
func pointID(namespace, id string) *qdrant.PointId {
	derived := uuid.NewSHA1(recordIDSpace, []byte(namespace+"\x00"+id))
	return qdrant.NewIDUUID(derived.String())
}

// toPayload builds the Qdrant payload for a record: reserved id and
// namespace keys plus the user metadata.
func toPayload(namespace string, rec Record) (map[string]*qdrant.Value, error) {
	payload := make(map[string]*qdrant.Value, len(rec.Metadata)+2)
	payload[payloadKeyID] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: rec.ID}}
	payload[payloadKeyNamespace] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: namespace}}

	for k, v := range rec.Metadata {
		if k == payloadKeyID || k == payloadKeyNamespace {
			return nil, &ValidationError{Field: k, Reason: "metadata key is reserved"}
		}
		val, err := toValue(v)
		if err != nil {
			return nil, &ValidationError{Field: k, Reason: err.Error()}
		}
		payload[k] = val
	}
	return payload, nil
}

// fromPayload extracts the record id and user metadata from a payload.
func fromPayload(payload map[string]*qdrant.Value) (string, Metadata) {
	if payload == nil {
		return "", nil
	}

	var id string
	metadata := make(Metadata, len(payload))
	for k, v := range payload {
		switch k {
		case payloadKeyID:
			id = v.GetStringValue()
		case payloadKeyNamespace:
			// Internal partitioning key, not caller metadata.
		default:
			metadata[k] = fromValue(v)
		}
	}
	return id, metadata
}

func toValue(v any) (*qdrant.Value, error) {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}, nil
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}, nil
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}, nil
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}, nil
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}, nil
	case []string:
		values := make([]*qdrant.Value, len(val))
		for i, s := range val {
			values[i] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{
			ListValue: &qdrant.ListValue{Values: values},
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported metadata type %T", v)
	}
}

func fromValue(v *qdrant.Value) any {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_ListValue:
		items := make([]string, 0, len(val.ListValue.GetValues()))
		for _, item := range val.ListValue.GetValues() {
			items = append(items, item.GetStringValue())
		}
		return items
	default:
		return nil
	}
}

// toQdrantFilter translates a filter into Qdrant conditions, always
// prepending the namespace clause.
func toQdrantFilter(namespace string, f *Filter) (*qdrant.Filter, error) {
	out := &qdrant.Filter{
		Must: []*qdrant.Condition{matchCondition(payloadKeyNamespace, namespace)},
	}
	if f == nil {
		return out, nil
	}

	for _, c := range f.Conditions {
		switch c.Op {
		case FilterEq:
			cond, err := eqCondition(c)
			if err != nil {
				return nil, err
			}
			out.Must = append(out.Must, cond)
		case FilterNe:
			cond, err := eqCondition(c)
			if err != nil {
				return nil, err
			}
			out.MustNot = append(out.MustNot, cond)
		case FilterIn:
			out.Must = append(out.Must, keywordsCondition(c.Field, c.Values))
		case FilterNin:
			out.MustNot = append(out.MustNot, keywordsCondition(c.Field, c.Values))
		default:
			return nil, &ValidationError{Field: c.Field, Reason: fmt.Sprintf("unsupported filter operator %q", c.Op)}
		}
	}
	return out, nil
}

func eqCondition(c Condition) (*qdrant.Condition, error) {
	switch v := c.Value.(type) {
	case string:
		return matchCondition(c.Field, v), nil
	case bool:
		return fieldCondition(c.Field, &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}), nil
	case int:
		return fieldCondition(c.Field, &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}), nil
	case int64:
		return fieldCondition(c.Field, &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}), nil
	default:
		return nil, &ValidationError{Field: c.Field, Reason: fmt.Sprintf("unsupported match value type %T", c.Value)}
	}
}

func matchCondition(field, keyword string) *qdrant.Condition {
	return fieldCondition(field, &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: keyword}})
}

func keywordsCondition(field string, values []string) *qdrant.Condition {
	return fieldCondition(field, &qdrant.Match{MatchValue: &qdrant.Match_Keywords{
		Keywords: &qdrant.RepeatedStrings{Strings: values},
	}})
}

func fieldCondition(field string, match *qdrant.Match) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: field, Match: match},
		},
	}
}
