// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/novatechflow/minikaf/pkg/metadata"
	"github.com/novatechflow/minikaf/pkg/protocol"
	"github.com/novatechflow/minikaf/pkg/storage"
)

// RequestDecoder reads a request body positioned after the request header.
type RequestDecoder func(r *protocol.Reader) (protocol.RequestBody, error)

// HeaderTransform derives the response header from the request header.
type HeaderTransform func(h *protocol.RequestHeader) protocol.ResponseHeader

// BodyHandler turns a decoded request body into a response body.
type BodyHandler func(ctx context.Context, body protocol.RequestBody) (protocol.ResponseBody, error)

// Exchange bundles everything needed to serve one ApiKeyVersion.
type Exchange struct {
	Decode RequestDecoder
	Header HeaderTransform
	Handle BodyHandler
}

// Options configures a DispatchTable.
type Options struct {
	Logger  *slog.Logger
	Metrics *Metrics
	// TraceRequests logs every request at debug level.
	TraceRequests bool
}

// DispatchTable maps ApiKeyVersion to an Exchange. It is built once and is
// read-only afterwards, so connections share it without locking.
type DispatchTable struct {
	exchanges map[protocol.ApiKeyVersion]Exchange
	keys      []protocol.ApiKeyVersion
	logger    *slog.Logger
	metrics   *Metrics
	trace     bool
}

// NewDispatchTable registers ApiVersions v4, DescribeTopicPartitions v0,
// Fetch v16 and Produce v11 against dir and store.
func NewDispatchTable(dir *metadata.Directory, store *storage.LogStore, opts Options) *DispatchTable {
	t := newDispatchTable(opts)
	h := &handlers{dir: dir, store: store, table: t, metrics: opts.Metrics, logger: t.logger}
	t.register(protocol.ApiVersionsV4, Exchange{
		Decode: protocol.DecodeApiVersionsRequest,
		Header: correlationHeader,
		Handle: h.apiVersions,
	})
	t.register(protocol.DescribeTopicPartitionsV0, Exchange{
		Decode: protocol.DecodeDescribeTopicPartitionsRequest,
		Header: taggedHeader,
		Handle: h.describeTopicPartitions,
	})
	t.register(protocol.FetchV16, Exchange{
		Decode: protocol.DecodeFetchRequest,
		Header: taggedHeader,
		Handle: h.fetch,
	})
	t.register(protocol.ProduceV11, Exchange{
		Decode: protocol.DecodeProduceRequest,
		Header: taggedHeader,
		Handle: h.produce,
	})
	return t
}

func newDispatchTable(opts Options) *DispatchTable {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchTable{
		exchanges: make(map[protocol.ApiKeyVersion]Exchange),
		logger:    logger,
		metrics:   opts.Metrics,
		trace:     opts.TraceRequests,
	}
}

func (t *DispatchTable) register(key protocol.ApiKeyVersion, ex Exchange) {
	if _, ok := t.exchanges[key]; !ok {
		t.keys = append(t.keys, key)
		sort.Slice(t.keys, func(i, j int) bool { return t.keys[i].Less(t.keys[j]) })
	}
	t.exchanges[key] = ex
}

// Keys returns the registered keys ordered by api key then version.
func (t *DispatchTable) Keys() []protocol.ApiKeyVersion {
	return append([]protocol.ApiKeyVersion(nil), t.keys...)
}

// Lookup returns the Exchange registered for key.
func (t *DispatchTable) Lookup(key protocol.ApiKeyVersion) (Exchange, bool) {
	ex, ok := t.exchanges[key]
	return ex, ok
}

// DecodeRequest parses the header and body of payload. An unregistered key
// or a missing decoder yields a *protocol.Error carrying the correlation id;
// the body is left unread in that case.
func (t *DispatchTable) DecodeRequest(payload []byte) (*protocol.Request, error) {
	header, r, err := protocol.ParseRequestHeader(payload)
	if err != nil {
		return nil, fmt.Errorf("parse request header: %w", err)
	}
	ex, ok := t.exchanges[header.Key]
	if !ok || ex.Decode == nil {
		return nil, protocol.NewError(protocol.UNSUPPORTED_VERSION, header.CorrelationID)
	}
	body, err := ex.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s request: %w", header.Key, err)
	}
	return &protocol.Request{Header: header, Body: body}, nil
}

// HandleRequest runs the handler for req and builds the response header.
func (t *DispatchTable) HandleRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	ex, ok := t.exchanges[req.Header.Key]
	if !ok || ex.Header == nil || ex.Handle == nil {
		return nil, protocol.NewError(protocol.UNSUPPORTED_VERSION, req.Header.CorrelationID)
	}
	body, err := ex.Handle(ctx, req.Body)
	if err != nil {
		t.logger.Error("handler failed", "api", req.Header.Key.String(), "correlation_id", req.Header.CorrelationID, "error", err)
		return nil, protocol.NewError(protocol.UNKNOWN_SERVER_ERROR, req.Header.CorrelationID)
	}
	if body == nil {
		return nil, protocol.NewError(protocol.UNKNOWN_SERVER_ERROR, req.Header.CorrelationID)
	}
	return &protocol.Response{Header: ex.Header(req.Header), Body: body}, nil
}

// Handle decodes payload, dispatches it and encodes the response. It
// satisfies Handler.
func (t *DispatchTable) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	start := time.Now()
	req, err := t.DecodeRequest(payload)
	if err != nil {
		t.metrics.observeRequest("unknown", outcome(err), time.Since(start))
		return nil, err
	}
	api := protocol.APIName(req.Header.Key.APIKey)
	if t.trace {
		t.logger.Debug("kafka request", "api", req.Header.Key.String(), "correlation_id", req.Header.CorrelationID, "client_id", clientID(req.Header))
	}
	resp, err := t.HandleRequest(ctx, req)
	if err != nil {
		t.metrics.observeRequest(api, outcome(err), time.Since(start))
		return nil, err
	}
	out, err := protocol.EncodeResponse(resp)
	if err != nil {
		t.metrics.observeRequest(api, resultFailed, time.Since(start))
		return nil, fmt.Errorf("encode %s response: %w", req.Header.Key, err)
	}
	t.metrics.observeRequest(api, resultOK, time.Since(start))
	return out, nil
}

func outcome(err error) string {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return resultErrorFrame
	}
	return resultFailed
}

func clientID(h *protocol.RequestHeader) string {
	if h.ClientID == nil {
		return ""
	}
	return *h.ClientID
}

func correlationHeader(h *protocol.RequestHeader) protocol.ResponseHeader {
	return protocol.ResponseHeaderV0{CorrelationID: h.CorrelationID}
}

func taggedHeader(h *protocol.RequestHeader) protocol.ResponseHeader {
	return protocol.ResponseHeaderV1{CorrelationID: h.CorrelationID}
}
