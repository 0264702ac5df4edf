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

	"github.com/novatechflow/minikaf/pkg/protocol"
)

func (h *handlers) apiVersions(ctx context.Context, body protocol.RequestBody) (protocol.ResponseBody, error) {
	req, ok := body.(*protocol.ApiVersionsRequest)
	if !ok {
		return nil, unexpectedBody("ApiVersions", body)
	}
	if req.ClientSoftwareName != nil {
		h.logger.Debug("api versions", "client_software_name", *req.ClientSoftwareName, "client_software_version", derefString(req.ClientSoftwareVersion))
	}
	keys := h.table.Keys()
	versions := make([]protocol.ApiVersion, 0, len(keys))
	for _, key := range keys {
		versions = append(versions, protocol.ApiVersion{
			APIKey:     key.APIKey,
			MinVersion: key.APIVersion,
			MaxVersion: key.APIVersion,
		})
	}
	return &protocol.ApiVersionsResponse{
		ErrorCode: protocol.NONE,
		ApiKeys:   versions,
	}, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
