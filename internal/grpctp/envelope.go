package grpctp

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	language "github.com/russellyou/nadel/internal/language"
	"github.com/russellyou/nadel/internal/result"
	"github.com/russellyou/nadel/internal/service"
)

// Service calls travel as google.protobuf.Struct messages shaped like a
// GraphQL-over-HTTP body:
//
//	request:  {query, operationName, variables, executionId, hydration}
//	response: {data, errors, extensions}
const (
	ServiceName  = "nadel.GraphQL"
	MethodName   = "Execute"
	fullMethod   = "/" + ServiceName + "/" + MethodName
	hydrationKey = "hydration"
)

func encodeParams(p *service.Params) (*structpb.Struct, error) {
	m := map[string]any{
		"query":       p.QueryString(),
		"executionId": p.ExecutionID,
	}
	if p.OperationName != "" {
		m["operationName"] = p.OperationName
	}
	if len(p.Variables) > 0 {
		m["variables"] = p.Variables
	}
	if h := p.Hydration; h != nil {
		m[hydrationKey] = map[string]any{
			"timeoutMs":     h.Timeout.Milliseconds(),
			"batchSize":     h.BatchSize,
			"sourceService": h.SourceService,
			"sourceField":   h.SourceField,
			"actorField":    h.ActorField,
		}
	}
	return toStruct(m)
}

func decodeParams(s *structpb.Struct) (*service.Params, error) {
	m := s.AsMap()
	query, _ := m["query"].(string)
	doc, err := language.ParseQuery(query)
	if err != nil {
		return nil, err
	}
	p := &service.Params{Query: doc}
	p.OperationName, _ = m["operationName"].(string)
	p.ExecutionID, _ = m["executionId"].(string)
	p.Variables, _ = m["variables"].(map[string]any)
	if h, ok := m[hydrationKey].(map[string]any); ok {
		d := &service.HydrationDetails{}
		if ms, ok := h["timeoutMs"].(float64); ok {
			d.Timeout = time.Duration(ms) * time.Millisecond
		}
		if n, ok := h["batchSize"].(float64); ok {
			d.BatchSize = int(n)
		}
		d.SourceService, _ = h["sourceService"].(string)
		d.SourceField, _ = h["sourceField"].(string)
		d.ActorField, _ = h["actorField"].(string)
		p.Hydration = d
	}
	return p, nil
}

func encodeResponse(r *result.Response) (*structpb.Struct, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeResponse(s *structpb.Struct) (*result.Response, error) {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return nil, err
	}
	return result.ParseResponse(raw)
}

// toStruct goes through JSON so that any value encoding/json accepts
// (typed slices, json.Number, structs) survives the conversion.
func toStruct(m map[string]any) (*structpb.Struct, error) {
	if s, err := structpb.NewStruct(m); err == nil {
		return s, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("grpctp: encode request: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("grpctp: encode request: %w", err)
	}
	return s, nil
}
