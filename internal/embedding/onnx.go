//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/skillrank/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXProvider runs a sentence encoder over single skill tokens. It requires
// CGO and the onnxruntime shared library.
type ONNXProvider struct {
	modelPath  string
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	cache      *TokenCache
	tokenizer  Tokenizer
	// Pre-allocated tensors for Run(); we update input data and read output.
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	tokenTypeIDsTensor  *ort.Tensor[int64]
	outputTensor        *ort.Tensor[float32]
	mu                  sync.Mutex
}

// NewONNXProvider creates an ONNX provider. InitializeEnvironment is called if not already done.
func NewONNXProvider(modelPath string, dimensions, maxTokens, cacheSize int) (*ONNXProvider, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	tokenizer := &SimpleTokenizer{}
	inputIDs, attentionMask, tokenTypeIDs := tokenizer.Tokenize("", maxTokens)
	seqLen := int64(len(inputIDs))

	inputIDsTensor, err := ort.NewTensor(ort.NewShape(1, seqLen), inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	attentionMaskTensor, err := ort.NewTensor(ort.NewShape(1, seqLen), attentionMask)
	if err != nil {
		inputIDsTensor.Destroy()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	tokenTypeIDsTensor, err := ort.NewTensor(ort.NewShape(1, seqLen), tokenTypeIDs)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions)))
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		tokenTypeIDsTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		tokenTypeIDsTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXProvider{
		modelPath:           modelPath,
		session:             session,
		dimensions:          dimensions,
		maxTokens:           maxTokens,
		cache:               NewTokenCache(cacheSize),
		tokenizer:           tokenizer,
		inputIDsTensor:      inputIDsTensor,
		attentionMaskTensor: attentionMaskTensor,
		tokenTypeIDsTensor:  tokenTypeIDsTensor,
		outputTensor:        outputTensor,
	}, nil
}

// WordVector returns the encoder output for token, using the cache when available.
func (p *ONNXProvider) WordVector(ctx context.Context, token string) ([]float32, error) {
	if cached, ok := p.cache.Get(token); ok {
		return cached, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	inputIDs, attentionMask, tokenTypeIDs := p.tokenizer.Tokenize(token, p.maxTokens)
	copy(p.inputIDsTensor.GetData(), inputIDs)
	copy(p.attentionMaskTensor.GetData(), attentionMask)
	copy(p.tokenTypeIDsTensor.GetData(), tokenTypeIDs)

	if err := p.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed for %q: %w", token, err)
	}

	vec := make([]float32, p.dimensions)
	copy(vec, p.outputTensor.GetData()[:p.dimensions])
	utils.NormalizeL2(vec)
	p.cache.Set(token, vec)
	return vec, nil
}

// Dimensions returns the vector dimension.
func (p *ONNXProvider) Dimensions() int {
	return p.dimensions
}

// ModelID returns the model path.
func (p *ONNXProvider) ModelID() string {
	return p.modelPath
}

// Close destroys the session and tensors.
func (p *ONNXProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.session != nil {
		err = p.session.Destroy()
		p.session = nil
	}
	if p.inputIDsTensor != nil {
		_ = p.inputIDsTensor.Destroy()
		p.inputIDsTensor = nil
	}
	if p.attentionMaskTensor != nil {
		_ = p.attentionMaskTensor.Destroy()
		p.attentionMaskTensor = nil
	}
	if p.tokenTypeIDsTensor != nil {
		_ = p.tokenTypeIDsTensor.Destroy()
		p.tokenTypeIDsTensor = nil
	}
	if p.outputTensor != nil {
		_ = p.outputTensor.Destroy()
		p.outputTensor = nil
	}
	return err
}
