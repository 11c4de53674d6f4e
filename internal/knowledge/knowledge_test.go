package knowledge

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors score %f, want 1", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors score %f, want 0", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Errorf("mismatched lengths score %f, want 0", got)
	}
	if got := cosineSimilarity(nil, nil); got != 0 {
		t.Errorf("empty vectors score %f, want 0", got)
	}
}

func TestEncodeFloat32Blob(t *testing.T) {
	blob := encodeFloat32Blob([]float32{1.5, -2.0})
	if len(blob) != 8 {
		t.Fatalf("blob length = %d, want 8", len(blob))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(blob[0:4])); got != 1.5 {
		t.Errorf("first element = %f", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(blob[4:8])); got != -2.0 {
		t.Errorf("second element = %f", got)
	}
}
