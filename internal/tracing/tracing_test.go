// Copyright 2025 Tom Barlow
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

package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderNoneExporterCreatesRealSpans(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Exporter: ExporterNone})
	require.NoError(t, err)
	require.NotNil(t, p)

	_, span := p.tp.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderStdoutExporter(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Exporter: ExporterStdout})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderDefaultsServiceName(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderUnknownExporterFails(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Exporter: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestShutdownNilProviderIsNoop(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}
