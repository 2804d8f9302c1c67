package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/tejusbharadwaj/nbeconnect/internal/commands"
	"github.com/tejusbharadwaj/nbeconnect/internal/database"
	"github.com/tejusbharadwaj/nbeconnect/internal/device"
	"github.com/tejusbharadwaj/nbeconnect/internal/models"
	"github.com/tejusbharadwaj/nbeconnect/internal/poller"
	"github.com/tejusbharadwaj/nbeconnect/internal/series"
)

// Reader is the read side of the boiler
type Reader interface {
	GetValue(key string) (string, bool)
	GetPrefix(prefix string) map[string]string
	ListKeys() []string
	Classify(key string) models.SensorDefinition
	ReconstructSeries(key string) (models.ConsumptionSeries, error)
}

// Writer is the write side of the boiler
type Writer interface {
	Set(ctx context.Context, req commands.SetRequest) error
	Run(ctx context.Context, name string) error
}

// HistoryRepository answers QueryHistory
type HistoryRepository interface {
	Query(ctx context.Context, key string, start, end time.Time, window, aggregation string) ([]models.TimeSeriesData, error)
}

// BoilerService implements BoilerServer
type BoilerService struct {
	reader    Reader
	writer    Writer
	history   HistoryRepository
	validator *RequestValidator
}

// NewBoilerService creates the service. history may be nil when no
// database is configured, QueryHistory then reports Unavailable.
func NewBoilerService(reader Reader, writer Writer, history HistoryRepository) *BoilerService {
	return &BoilerService{
		reader:    reader,
		writer:    writer,
		history:   history,
		validator: NewRequestValidator(),
	}
}

// statusFromError maps domain errors to gRPC codes
func statusFromError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, commands.ErrWriteRejected):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, device.ErrRejected):
		return status.Error(codes.FailedPrecondition, err.Error())
	case device.IsTimeout(err):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, device.ErrTransport):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, poller.ErrUnknownKey):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, poller.ErrNotHistory), errors.Is(err, database.ErrInvalidQuery):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
}

// toStruct converts a JSON-encodable value to a Struct
func toStruct(v interface{}) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoilerService) GetValue(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	v, ok := s.reader.GetValue(req.GetValue())
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown key: %s", req.GetValue())
	}
	return wrapperspb.String(v), nil
}

func (s *BoilerService) GetPrefix(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	values := s.reader.GetPrefix(req.GetValue())
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, statusFromError(err)
	}
	return out, nil
}

func (s *BoilerService) ListKeys(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	keys := s.reader.ListKeys()
	values := make([]*structpb.Value, len(keys))
	for i, k := range keys {
		values[i] = structpb.NewStringValue(k)
	}
	return &structpb.ListValue{Values: values}, nil
}

func (s *BoilerService) Classify(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "missing key")
	}
	out, err := toStruct(s.reader.Classify(req.GetValue()))
	if err != nil {
		return nil, statusFromError(err)
	}
	return out, nil
}

// ReconstructSeries answers a malformed buffer with the empty series the
// reader produced. The reader logs the data-quality event.
func (s *BoilerService) ReconstructSeries(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	result, err := s.reader.ReconstructSeries(req.GetValue())
	if err != nil && !errors.Is(err, series.ErrDataQuality) {
		return nil, statusFromError(err)
	}
	out, err := toStruct(result)
	if err != nil {
		return nil, statusFromError(err)
	}
	return out, nil
}

func stringField(st *structpb.Struct, name string) string {
	v, ok := st.GetFields()[name]
	if !ok {
		return ""
	}
	if sv, ok := v.GetKind().(*structpb.Value_StringValue); ok {
		return sv.StringValue
	}
	if nv, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		b, _ := json.Marshal(nv.NumberValue)
		return string(b)
	}
	return ""
}

func (s *BoilerService) SetValue(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	setReq := commands.SetRequest{
		Key:      stringField(req, "key"),
		SensorID: stringField(req, "sensor_id"),
		Value:    stringField(req, "value"),
	}
	if err := s.writer.Set(ctx, setReq); err != nil {
		return nil, statusFromError(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *BoilerService) RunCommand(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.writer.Run(ctx, req.GetValue()); err != nil {
		return nil, statusFromError(err)
	}
	return &emptypb.Empty{}, nil
}

func parseTime(st *structpb.Struct, name string) time.Time {
	t, err := time.Parse(time.RFC3339, stringField(st, name))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *BoilerService) QueryHistory(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	if s.history == nil {
		return nil, status.Error(codes.Unavailable, "history storage is not configured")
	}

	q := HistoryQuery{
		Key:         stringField(req, "key"),
		Start:       parseTime(req, "start"),
		End:         parseTime(req, "end"),
		Window:      stringField(req, "window"),
		Aggregation: stringField(req, "aggregation"),
	}
	if err := s.validator.Validate(q); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	data, err := s.history.Query(ctx, q.Key, q.Start, q.End, q.Window, q.Aggregation)
	if err != nil {
		if errors.Is(err, database.ErrInvalidQuery) {
			return nil, statusFromError(err)
		}
		return nil, status.Errorf(codes.Internal, "query failed: %v", err)
	}

	values := make([]*structpb.Value, 0, len(data))
	for _, dp := range data {
		values = append(values, structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				"time":  structpb.NewStringValue(dp.Time.UTC().Format(time.RFC3339)),
				"value": structpb.NewNumberValue(dp.Value),
			},
		}))
	}
	return &structpb.ListValue{Values: values}, nil
}

var _ BoilerServer = (*BoilerService)(nil)
