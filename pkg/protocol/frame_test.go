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
	"bytes"
	"testing"
)

func TestFrameReadWrite(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	var buf bytes.Buffer

	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	if frame.Length != int32(len(payload)) {
		t.Fatalf("unexpected frame length: %d", frame.Length)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("payload mismatch: %v vs %v", frame.Payload, payload)
	}
}

func TestReadFrameRejectsNegativeLength(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xff, 0xff, 0xff, 0xfe})
	if _, err := ReadFrame(buf); err == nil {
		t.Fatalf("expected error for negative frame length")
	}
}

func TestReadFrameShortPayload(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x00, 0x00, 0x00, 0x04, 0x01})
	if _, err := ReadFrame(buf); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}

func TestWriteErrorFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteErrorFrame(&buf, NewError(UNSUPPORTED_VERSION, 0x01020304)); err != nil {
		t.Fatalf("WriteErrorFrame: %v", err)
	}
	want := []byte{0x00, 0x00, 0x00, 0x06, 0x01, 0x02, 0x03, 0x04, 0x00, 0x23}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("error frame %x want %x", buf.Bytes(), want)
	}
}
