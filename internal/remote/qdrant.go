package remote

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/kalambet/errorblob/internal/model"
)

const (
	sparseVectorName = "bm25"
	denseVectorName  = "dense"
	scrollPageSize   = 256
	prefetchFactor   = 4
	defaultGRPCPort  = 6334
)

// QdrantConfig selects the Qdrant instance and collection.
type QdrantConfig struct {
	URL       string
	APIKey    string
	Namespace string
	// Embedder enables hybrid sparse+dense search when set.
	Embedder Embedder
}

// QdrantService stores each record as a point whose payload mirrors the
// local file format. Points carry a sparse term vector and, with an
// embedder, a dense vector; hybrid queries are fused server-side with RRF.
type QdrantService struct {
	client     *qdrant.Client
	collection string
	embedder   Embedder
}

// NewQdrantService connects to Qdrant and creates the collection when it
// does not exist yet.
func NewQdrantService(ctx context.Context, cfg QdrantConfig) (*QdrantService, error) {
	host, port, useTLS, err := parseEndpoint(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   host,
		Port:                   port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 useTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	s := &QdrantService{
		client:     client,
		collection: collectionName(cfg.Namespace),
		embedder:   cfg.Embedder,
	}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// parseEndpoint maps a URL to the gRPC host/port. The REST port 6333 is
// translated to the gRPC port 6334.
func parseEndpoint(raw string) (string, int, bool, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("%w: invalid remote url %q: %v", model.ErrInvalidArgument, raw, err)
	}
	if u.Hostname() == "" {
		return "", 0, false, fmt.Errorf("%w: remote url %q has no host", model.ErrInvalidArgument, raw)
	}

	port := defaultGRPCPort
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("%w: invalid port in %q", model.ErrInvalidArgument, raw)
		}
		port = n
		if port == 6333 {
			port = defaultGRPCPort
		}
	}
	return u.Hostname(), port, u.Scheme == "https", nil
}

// collectionName turns a namespace into a valid collection name.
func collectionName(namespace string) string {
	return strings.ReplaceAll(namespace, ":", "_")
}

func (s *QdrantService) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}

	req := &qdrant.CreateCollection{
		CollectionName: s.collection,
		SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			sparseVectorName: {Modifier: qdrant.Modifier_Idf.Enum()},
		}),
	}
	if s.embedder != nil {
		req.VectorsConfig = qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			denseVectorName: {
				Size:     uint64(s.embedder.Dimensions()),
				Distance: qdrant.Distance_Cosine,
			},
		})
	}
	if err := s.client.CreateCollection(ctx, req); err != nil {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}
	return nil
}

func (s *QdrantService) Upsert(ctx context.Context, rec model.Record) (string, error) {
	rec.ID = uuid.NewString()

	indices, values := sparseVector(indexText(rec))
	vectors := map[string]*qdrant.Vector{
		sparseVectorName: qdrant.NewVectorSparse(indices, values),
	}
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, indexText(rec))
		if err != nil {
			return "", err
		}
		vectors[denseVectorName] = qdrant.NewVectorDense(vec)
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(rec.ID),
				Vectors: qdrant.NewVectorsMap(vectors),
				Payload: recordPayload(rec),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("upserting point: %w", err)
	}
	return rec.ID, nil
}

func (s *QdrantService) Query(ctx context.Context, text string, k int) ([]model.Match, error) {
	indices, values := sparseVector(text)
	if len(indices) == 0 && s.embedder == nil {
		return []model.Match{}, nil
	}

	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	if s.embedder == nil {
		req.Query = qdrant.NewQuerySparse(indices, values)
		req.Using = qdrant.PtrOf(sparseVectorName)
	} else {
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		prefetchLimit := qdrant.PtrOf(uint64(k * prefetchFactor))
		req.Prefetch = []*qdrant.PrefetchQuery{
			{
				Query: qdrant.NewQuery(vec...),
				Using: qdrant.PtrOf(denseVectorName),
				Limit: prefetchLimit,
			},
		}
		if len(indices) > 0 {
			req.Prefetch = append(req.Prefetch, &qdrant.PrefetchQuery{
				Query: qdrant.NewQuerySparse(indices, values),
				Using: qdrant.PtrOf(sparseVectorName),
				Limit: prefetchLimit,
			})
		}
		req.Query = qdrant.NewQueryFusion(qdrant.Fusion_RRF)
	}

	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	matches := make([]model.Match, 0, len(points))
	for _, p := range points {
		rec, err := payloadToRecord(p.GetId().GetUuid(), p.GetPayload())
		if err != nil {
			return nil, err
		}
		matches = append(matches, model.Match{Record: rec, Score: float64(p.GetScore())})
	}
	return matches, nil
}

// Delete checks existence first because Qdrant does not report whether a
// delete removed anything.
func (s *QdrantService) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, fmt.Errorf("%w: malformed record id %q", model.ErrInvalidArgument, id)
	}

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return false, fmt.Errorf("checking point: %w", err)
	}
	if len(points) == 0 {
		return false, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(qdrant.NewID(id)),
	})
	if err != nil {
		return false, fmt.Errorf("deleting point: %w", err)
	}
	return true, nil
}

// List scrolls through the whole collection. Scroll offsets are inclusive,
// so each page asks for one extra point and uses it as the next offset.
func (s *QdrantService) List(ctx context.Context) ([]model.Record, error) {
	var (
		records []model.Record
		offset  *qdrant.PointId
	)
	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize + 1)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(false),
		})
		if err != nil {
			return nil, fmt.Errorf("scrolling points: %w", err)
		}

		page := points
		if len(points) > scrollPageSize {
			page = points[:scrollPageSize]
		}
		for _, p := range page {
			rec, err := payloadToRecord(p.GetId().GetUuid(), p.GetPayload())
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}

		if len(points) <= scrollPageSize {
			break
		}
		offset = points[scrollPageSize].GetId()
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (s *QdrantService) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return int(n), nil
}

func (s *QdrantService) Close() error {
	return s.client.Close()
}

func recordPayload(r model.Record) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value)
	payload["error_text"], _ = qdrant.NewValue(r.ErrorText)
	payload["fix_text"], _ = qdrant.NewValue(r.FixText)
	payload["author"], _ = qdrant.NewValue(r.Author)
	payload["created_at"], _ = qdrant.NewValue(r.CreatedAt.UTC().Format(time.RFC3339Nano))

	tagValues := make([]*qdrant.Value, len(r.Tags))
	for i, tag := range r.Tags {
		tagValues[i], _ = qdrant.NewValue(tag)
	}
	payload["tags"] = qdrant.NewValueList(&qdrant.ListValue{Values: tagValues})
	return payload
}

func payloadToRecord(id string, payload map[string]*qdrant.Value) (model.Record, error) {
	rec := model.Record{
		ID:        id,
		ErrorText: payload["error_text"].GetStringValue(),
		FixText:   payload["fix_text"].GetStringValue(),
		Author:    payload["author"].GetStringValue(),
		Tags:      []string{},
	}

	if list := payload["tags"].GetListValue(); list != nil {
		for _, v := range list.GetValues() {
			if t := v.GetStringValue(); t != "" {
				rec.Tags = append(rec.Tags, t)
			}
		}
	}

	if raw := payload["created_at"].GetStringValue(); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return model.Record{}, fmt.Errorf("parsing created_at of point %s: %w", id, err)
		}
		rec.CreatedAt = t
	}
	return rec, nil
}
