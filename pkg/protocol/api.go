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

// API keys served by the broker.
const (
	APIKeyProduce                 int16 = 0
	APIKeyFetch                   int16 = 1
	APIKeyApiVersion              int16 = 18
	APIKeyDescribeTopicPartitions int16 = 75
)

var apiNames = map[int16]string{
	APIKeyProduce:                 "Produce",
	APIKeyFetch:                   "Fetch",
	APIKeyApiVersion:              "ApiVersions",
	APIKeyDescribeTopicPartitions: "DescribeTopicPartitions",
}

// APIName returns a readable name for key.
func APIName(key int16) string {
	if name, ok := apiNames[key]; ok {
		return name
	}
	return fmt.Sprintf("api_%d", key)
}

// ApiKeyVersion identifies one request shape.
type ApiKeyVersion struct {
	APIKey     int16
	APIVersion int16
}

var (
	ApiVersionsV4             = ApiKeyVersion{APIKey: APIKeyApiVersion, APIVersion: 4}
	DescribeTopicPartitionsV0 = ApiKeyVersion{APIKey: APIKeyDescribeTopicPartitions, APIVersion: 0}
	FetchV16                  = ApiKeyVersion{APIKey: APIKeyFetch, APIVersion: 16}
	ProduceV11                = ApiKeyVersion{APIKey: APIKeyProduce, APIVersion: 11}
)

// Less orders by key, then version.
func (k ApiKeyVersion) Less(o ApiKeyVersion) bool {
	if k.APIKey != o.APIKey {
		return k.APIKey < o.APIKey
	}
	return k.APIVersion < o.APIVersion
}

func (k ApiKeyVersion) String() string {
	return fmt.Sprintf("%s v%d", APIName(k.APIKey), k.APIVersion)
}

// ApiVersion describes the version range advertised for an API key.
type ApiVersion struct {
	APIKey     int16
	MinVersion int16
	MaxVersion int16
}
