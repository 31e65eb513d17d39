//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errONNXUnavailable = errors.New("ONNX provider requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXProvider stub type when built without CGO (see onnx.go for real implementation).
type ONNXProvider struct{}

// NewONNXProvider returns an error when built without CGO (ONNX not available).
func NewONNXProvider(_ string, _, _, _ int) (*ONNXProvider, error) {
	return nil, errONNXUnavailable
}

// WordVector is not implemented without CGO.
func (p *ONNXProvider) WordVector(context.Context, string) ([]float32, error) {
	return nil, errONNXUnavailable
}

// Dimensions returns 0 without CGO.
func (p *ONNXProvider) Dimensions() int { return 0 }

// ModelID returns "onnx".
func (p *ONNXProvider) ModelID() string { return "onnx" }

// Close is a no-op without CGO.
func (p *ONNXProvider) Close() error { return nil }
