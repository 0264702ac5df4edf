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
	"fmt"
	"log/slog"

	"github.com/novatechflow/minikaf/pkg/metadata"
	"github.com/novatechflow/minikaf/pkg/protocol"
	"github.com/novatechflow/minikaf/pkg/storage"
)

// handlers serves the registered APIs against a loaded directory and the
// partition log store.
type handlers struct {
	dir     *metadata.Directory
	store   *storage.LogStore
	table   *DispatchTable
	metrics *Metrics
	logger  *slog.Logger
}

func unexpectedBody(want string, got protocol.RequestBody) error {
	return fmt.Errorf("expected %s request, got %T", want, got)
}
