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

import "fmt"

// Error codes carried in responses and error frames.
const (
	UNKNOWN_SERVER_ERROR       int16 = -1
	NONE                       int16 = 0
	UNKNOWN_TOPIC_OR_PARTITION int16 = 3
	UNSUPPORTED_VERSION        int16 = 35
	UNKNOWN_TOPIC_ID           int16 = 100
)

var errorNames = map[int16]string{
	UNKNOWN_SERVER_ERROR:       "UNKNOWN_SERVER_ERROR",
	NONE:                       "NONE",
	UNKNOWN_TOPIC_OR_PARTITION: "UNKNOWN_TOPIC_OR_PARTITION",
	UNSUPPORTED_VERSION:        "UNSUPPORTED_VERSION",
	UNKNOWN_TOPIC_ID:           "UNKNOWN_TOPIC_ID",
}

// ErrorName returns the symbolic name of code.
func ErrorName(code int16) string {
	if name, ok := errorNames[code]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_%d", code)
}

// Error is a request-level failure that is answered with an error frame
// instead of closing the connection.
type Error struct {
	Code          int16
	CorrelationID int32
}

// NewError builds an Error for the request with the given correlation id.
func NewError(code int16, correlationID int32) *Error {
	return &Error{Code: code, CorrelationID: correlationID}
}

func (e *Error) Error() string {
	return fmt.Sprintf("kafka error %s (correlation id %d)", ErrorName(e.Code), e.CorrelationID)
}
