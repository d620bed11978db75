// Package transform implements the outbound payload chain: compress if the
// body is large enough, then encrypt if key material is available. Both
// stages are pure over their input and degrade to a pass-through on failure
// rather than blocking delivery; the tagged results make that degrade
// observable instead of inferred from absent metadata.
package transform

import (
	"pulsewire/pkg/constraints"
	"pulsewire/pkg/logger"

	"go.uber.org/zap"
)

type Options struct {
	CompressionEnabled   bool
	CompressionThreshold int
	EncryptionEnabled    bool
	// Key is the AES-256 key; must be exactly 32 bytes to be usable.
	Key []byte
}

// CompressionResult reports whether the compress stage ran and why not.
type CompressionResult struct {
	Applied         bool
	Algorithm       string
	SkipReason      string
	OriginalSize    int
	TransformedSize int
}

// EncryptionResult reports whether the encrypt stage ran and why not.
type EncryptionResult struct {
	Applied    bool
	Algorithm  string
	SkipReason string
}

// Result carries the wire-ready body plus per-stage outcomes.
type Result struct {
	Body        []byte
	Compression CompressionResult
	Encryption  EncryptionResult
}

type Chain struct {
	opts Options

	// stage funcs are fields so tests can force failures.
	compressFn func([]byte) ([]byte, error)
	encryptFn  func(key, plaintext []byte) ([]byte, error)
}

func NewChain(opts Options) *Chain {
	return &Chain{
		opts:       opts,
		compressFn: gzipCompress,
		encryptFn:  aesGCMSeal,
	}
}

// Apply runs both stages over body and returns the transformed bytes. The
// input slice is never modified.
func (c *Chain) Apply(body []byte) Result {
	res := Result{Body: body}
	res.Compression = c.compress(&res)
	res.Encryption = c.encrypt(&res)
	return res
}

func (c *Chain) compress(res *Result) CompressionResult {
	out := CompressionResult{OriginalSize: len(res.Body), TransformedSize: len(res.Body)}
	switch {
	case !c.opts.CompressionEnabled:
		out.SkipReason = "disabled"
		return out
	case len(res.Body) < c.opts.CompressionThreshold:
		out.SkipReason = "below threshold"
		return out
	}

	compressed, err := c.compressFn(res.Body)
	if err != nil {
		// Fall back to the uncompressed body; degraded delivery beats none.
		logger.Warn("compression failed, sending uncompressed", zap.Error(err))
		out.SkipReason = "compression error: " + err.Error()
		return out
	}

	res.Body = compressed
	out.Applied = true
	out.Algorithm = constraints.CompressionGzip
	out.TransformedSize = len(compressed)
	return out
}

func (c *Chain) encrypt(res *Result) EncryptionResult {
	var out EncryptionResult
	switch {
	case !c.opts.EncryptionEnabled:
		out.SkipReason = "disabled"
		return out
	case len(c.opts.Key) == 0:
		out.SkipReason = "no key material"
		return out
	case len(c.opts.Key) != keySize:
		out.SkipReason = "invalid key size"
		return out
	}

	sealed, err := c.encryptFn(c.opts.Key, res.Body)
	if err != nil {
		// Availability over confidentiality: ship plaintext and record it.
		logger.Warn("encryption failed, sending plaintext", zap.Error(err))
		out.SkipReason = "cipher error: " + err.Error()
		return out
	}

	res.Body = sealed
	out.Applied = true
	out.Algorithm = constraints.EncryptionAESGCM
	return out
}
