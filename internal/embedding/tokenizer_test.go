package embedding

import (
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("python", 8)
	if len(ids) != 8 {
		t.Errorf("len(ids)=%d", len(ids))
	}
	if ids[0] != 101 {
		t.Errorf("expected CLS 101, got %d", ids[0])
	}
	if ids[2] != 102 {
		t.Errorf("expected SEP after one word, got %d", ids[2])
	}
	if attn[0] != 1 || attn[1] != 1 || attn[2] != 1 || attn[3] != 0 {
		t.Errorf("unexpected attention mask %v", attn)
	}
}

func TestSimpleTokenizer_TruncatesLongInput(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("a b c d e f g h i j", 4)
	if len(ids) != 4 {
		t.Fatalf("len(ids)=%d", len(ids))
	}
	if ids[3] != 102 {
		t.Errorf("last position should be SEP, got %d", ids[3])
	}
	for i, a := range attn {
		if a != 1 {
			t.Errorf("attention[%d]=%d, want 1", i, a)
		}
	}
}

func TestHashString(t *testing.T) {
	h := HashString("abc")
	if h == 0 {
		t.Error("hash should be non-zero")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString("") != 0 {
		t.Error("empty string should hash to 0")
	}
}
