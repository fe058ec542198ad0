//go:build !integration

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veldscape/landcover-cli/internal/legend"
)

func TestFormatLegend(t *testing.T) {
	var buf bytes.Buffer
	formatLegend(&buf, legend.Default())

	output := buf.String()
	assert.Contains(t, output, "CODE")
	assert.Contains(t, output, "CLASS")
	assert.Contains(t, output, "field_crops")
	assert.Contains(t, output, "12")
	assert.Contains(t, output, "water")
	assert.Contains(t, output, "mangrove")
}
