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

package protocol

import (
	"errors"
	"fmt"
)

// ErrUnencodableHeader is returned when a request header is used as a
// response header.
var ErrUnencodableHeader = errors.New("request header cannot be encoded as a response header")

// RequestHeader is the v2 request header: api key, api version, correlation
// id, nullable client id and an empty tagged-field section.
type RequestHeader struct {
	Key           ApiKeyVersion
	CorrelationID int32
	ClientID      *string
}

// ResponseHeader is one of ResponseHeaderV0, ResponseHeaderV1 or
// *RequestHeader.
type ResponseHeader interface {
	Correlation() int32
	isResponseHeader()
}

// ResponseHeaderV0 carries only the correlation id.
type ResponseHeaderV0 struct {
	CorrelationID int32
}

// ResponseHeaderV1 carries the correlation id and a tagged-field section.
type ResponseHeaderV1 struct {
	CorrelationID int32
}

func (h ResponseHeaderV0) Correlation() int32 { return h.CorrelationID }
func (h ResponseHeaderV1) Correlation() int32 { return h.CorrelationID }
func (h *RequestHeader) Correlation() int32 { return h.CorrelationID }

func (ResponseHeaderV0) isResponseHeader() {}
func (ResponseHeaderV1) isResponseHeader() {}
func (*RequestHeader) isResponseHeader() {}

// ParseRequestHeader decodes the header at the start of payload and returns
// a reader positioned at the request body.
func ParseRequestHeader(payload []byte) (*RequestHeader, *Reader, error) {
	r := NewReader(payload)
	apiKey, err := r.Int16()
	if err != nil {
		return nil, nil, fmt.Errorf("read api key: %w", err)
	}
	version, err := r.Int16()
	if err != nil {
		return nil, nil, fmt.Errorf("read api version: %w", err)
	}
	correlationID, err := r.Int32()
	if err != nil {
		return nil, nil, fmt.Errorf("read correlation id: %w", err)
	}
	clientID, err := r.NullableString()
	if err != nil {
		return nil, nil, fmt.Errorf("read client id: %w", err)
	}
	if err := r.SkipTaggedFields(); err != nil {
		return nil, nil, fmt.Errorf("read header tags: %w", err)
	}
	return &RequestHeader{
		Key:           ApiKeyVersion{APIKey: apiKey, APIVersion: version},
		CorrelationID: correlationID,
		ClientID:      clientID,
	}, r, nil
}

// EncodeRequestHeader writes h in request-header v2 layout.
func EncodeRequestHeader(w *Writer, h *RequestHeader) {
	w.Int16(h.Key.APIKey)
	w.Int16(h.Key.APIVersion)
	w.Int32(h.CorrelationID)
	w.NullableString(h.ClientID)
	w.WriteTaggedFields()
}

// EncodeResponseHeader writes h. Only the v0 and v1 response headers are
// encodable.
func EncodeResponseHeader(w *Writer, h ResponseHeader) error {
	switch h := h.(type) {
	case ResponseHeaderV0:
		w.Int32(h.CorrelationID)
	case ResponseHeaderV1:
		w.Int32(h.CorrelationID)
		w.WriteTaggedFields()
	case *RequestHeader:
		return ErrUnencodableHeader
	default:
		return fmt.Errorf("unknown response header type %T", h)
	}
	return nil
}
