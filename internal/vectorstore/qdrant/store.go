// Package qdrant is the managed vector backend on Qdrant's gRPC API.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/kailas-cloud/versefind/internal/domain"
	"github.com/kailas-cloud/versefind/internal/vectorstore"
)

var tracer = otel.Tracer("versefind.vectorstore.qdrant")

// Defaults.
const (
	DefaultPort       = 6334
	DefaultCollection = "versefind_items"
	MaxBatchSize      = 100
	defaultTimeout    = 30 * time.Second
	maxMessageSize    = 50 * 1024 * 1024
)

// Payload keys beyond the display metadata.
const (
	payloadID    = "id"
	payloadModel = "model"
)

// pointIDNamespace seeds deterministic UUIDv5 point ids.
var pointIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("versefind/items"))

var _ vectorstore.Store = (*Store)(nil)

// pointsClient is the subset of *qdrant.Client used by the adapter.
type pointsClient interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// Config configures the Qdrant connection.
type Config struct {
	Host string
	// Port is the gRPC port, not the REST one.
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.BatchSize <= 0 || c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Dimensions <= 0 {
		return errors.New("dimensions must be positive")
	}
	return nil
}

// Store implements vectorstore.Store on a Qdrant collection.
type Store struct {
	client pointsClient
	cfg    Config
	logger *zap.Logger
}

// Open dials Qdrant and returns a store. It does not touch the collection.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid qdrant config: %w", err)
	}

	qc := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMessageSize),
				grpc.MaxCallSendMsgSize(maxMessageSize),
			),
		},
	}
	if !cfg.UseTLS {
		qc.GrpcOptions = append(qc.GrpcOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	client, err := qdrant.NewClient(qc)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	if logger != nil {
		logger.Info("qdrant client created",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.Bool("tls", cfg.UseTLS),
		)
	}
	return newStore(client, cfg, logger), nil
}

func newStore(c pointsClient, cfg Config, logger *zap.Logger) *Store {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: c, cfg: cfg, logger: logger}
}

// Backend returns BackendQdrant.
func (s *Store) Backend() vectorstore.Backend { return vectorstore.BackendQdrant }

// EnsureCollection creates the cosine collection when missing.
func (s *Store) EnsureCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "qdrant.EnsureCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", s.cfg.Collection))

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return s.fail(span, "collection exists", err)
	}
	if exists {
		span.SetStatus(codes.Ok, "exists")
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.cfg.Dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && status.Code(err) != grpccodes.AlreadyExists {
		return s.fail(span, "create collection", err)
	}
	s.logger.Info("qdrant collection created",
		zap.String("collection", s.cfg.Collection),
		zap.Int("dimensions", s.cfg.Dimensions),
	)
	span.SetStatus(codes.Ok, "created")
	return nil
}

// Upsert writes points in batches of at most MaxBatchSize and waits for each
// batch to be applied. Point ids derive from item ids, so upserts are idempotent.
func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	ctx, span := tracer.Start(ctx, "qdrant.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.cfg.Collection),
		attribute.Int("items", len(items)),
	)

	for _, chunk := range vectorstore.Chunks(items, s.cfg.BatchSize) {
		points := make([]*qdrant.PointStruct, 0, len(chunk))
		for i := range chunk {
			it := &chunk[i]
			if len(it.Vector) != s.cfg.Dimensions {
				err := fmt.Errorf("item %s: got %d, want %d: %w",
					it.ID, len(it.Vector), s.cfg.Dimensions, domain.ErrVectorDimMismatch)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			points = append(points, toPoint(it))
		}

		cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		_, err := s.client.Upsert(cctx, &qdrant.UpsertPoints{
			CollectionName: s.cfg.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		cancel()
		if err != nil {
			return s.fail(span, "upsert", err)
		}
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query returns the topK nearest points whose payload model equals model.
func (s *Store) Query(ctx context.Context, vector []float32, model string, topK int) ([]vectorstore.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "qdrant.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.cfg.Collection),
		attribute.Int("top_k", topK),
	)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         modelFilter(model),
	})
	if err != nil {
		return nil, s.fail(span, "query", err)
	}

	matches := make([]vectorstore.Match, 0, len(points))
	for _, p := range points {
		payload := stringPayload(p.GetPayload())
		id := payload[payloadID]
		delete(payload, payloadID)
		delete(payload, payloadModel)
		if id == "" {
			id = p.GetId().GetUuid()
		}
		matches = append(matches, vectorstore.MatchFromMetadata(id, float64(p.GetScore()), payload))
	}
	span.SetAttributes(attribute.Int("matches", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// HealthCheck calls the Qdrant health endpoint.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "qdrant.HealthCheck")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		return s.fail(span, "health check", err)
	}
	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Warn("qdrant call failed",
		zap.String("op", op),
		zap.String("collection", s.cfg.Collection),
		zap.Bool("transient", IsTransientError(err)),
		zap.Error(err),
	)
	return fmt.Errorf("qdrant %s: %w: %w", op, domain.ErrVectorStoreUnavailable, err)
}

// IsTransientError reports whether err is a gRPC error worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// PointID maps an item id to its deterministic UUIDv5 point id.
func PointID(itemID string) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(itemID)).String()
}

func toPoint(it *vectorstore.Item) *qdrant.PointStruct {
	payload := make(map[string]*qdrant.Value, len(it.Metadata)+2)
	for k, v := range it.Metadata {
		payload[k] = stringValue(v)
	}
	payload[payloadID] = stringValue(it.ID)
	payload[payloadModel] = stringValue(it.Model)
	payload[vectorstore.MetaKind] = stringValue(string(it.Kind))
	payload[vectorstore.MetaEntityID] = stringValue(it.EntityID)

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(PointID(it.ID)),
		Vectors: qdrant.NewVectors(it.Vector...),
		Payload: payload,
	}
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func stringPayload(payload map[string]*qdrant.Value) map[string]string {
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		if sv, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
			out[k] = sv.StringValue
		}
	}
	return out
}

func modelFilter(model string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: payloadModel,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: model},
					},
				},
			},
		}},
	}
}
