//go:build !integration

package main

import (
	"bytes"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/veldscape/landcover-cli/internal/fetch"
)

func TestFormatOutcomes(t *testing.T) {
	outcomes := []fetch.Outcome{
		{
			Source:  fetch.Source{URL: "https://example.com/hand.tif"},
			Path:    "layers/hand.tif",
			Bytes:   1024,
			Changed: true,
		},
		{
			Source: fetch.Source{URL: "https://example.com/buildings.tif"},
			Path:   "layers/buildings.tif",
		},
		{
			Source: fetch.Source{URL: "https://example.com/missing.tif"},
			Err:    eris.New("status 404"),
		},
	}

	var buf bytes.Buffer
	formatOutcomes(&buf, outcomes)

	output := buf.String()
	assert.Contains(t, output, "SOURCE")
	assert.Contains(t, output, "https://example.com/hand.tif")
	assert.Contains(t, output, "fetched")
	assert.Contains(t, output, "1024")
	assert.Contains(t, output, "unchanged")
	assert.Contains(t, output, "failed")
}
