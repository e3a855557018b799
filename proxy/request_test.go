package proxy

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	hyphae "github.com/PeterFile/hyphae-platform"
)

// countingReader yields an endless stream of 'a' and counts what it served.
type countingReader struct {
	n int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'a'
	}
	r.n += int64(len(p))
	return len(p), nil
}

func TestReadBounded(t *testing.T) {
	data, err := ReadBounded(strings.NewReader("12345"), 5)
	if err != nil {
		t.Fatalf("at limit: %v", err)
	}
	if string(data) != "12345" {
		t.Errorf("data = %q", data)
	}

	_, err = ReadBounded(strings.NewReader("123456"), 5)
	if !errors.Is(err, hyphae.ErrBodyTooLarge) {
		t.Fatalf("over limit: got %v", err)
	}
	if hyphae.CodeOf(err) != hyphae.ErrCodeBodyTooLarge {
		t.Errorf("code = %q", hyphae.CodeOf(err))
	}
}

func TestReadBounded_StopsReading(t *testing.T) {
	r := &countingReader{}
	_, err := ReadBounded(r, 1024)
	if !errors.Is(err, hyphae.ErrBodyTooLarge) {
		t.Fatalf("got %v", err)
	}
	if r.n > 1025 {
		t.Errorf("read %d bytes from an endless body, want at most 1025", r.n)
	}
}

func TestDecodeInvokeRequest(t *testing.T) {
	body := `{"id":"coinbase:abc","input":{"q":"hi"},"payment":{"header":"x-payment","value":"eyJ4In0="}}`
	req, err := DecodeInvokeRequest(strings.NewReader(body), 0)
	if err != nil {
		t.Fatalf("DecodeInvokeRequest: %v", err)
	}
	if req.ID != "coinbase:abc" {
		t.Errorf("id = %q", req.ID)
	}
	if string(req.Input) != `{"q":"hi"}` {
		t.Errorf("input = %s", req.Input)
	}
	if req.Payment == nil || req.Payment.Header != HeaderXPayment {
		t.Errorf("payment = %+v, want canonical header", req.Payment)
	}
}

func TestDecodeInvokeRequest_DefaultsInput(t *testing.T) {
	for _, body := range []string{`{"id":"payai:x"}`, `{"id":"payai:x","input":null}`} {
		req, err := DecodeInvokeRequest(strings.NewReader(body), 0)
		if err != nil {
			t.Fatalf("%s: %v", body, err)
		}
		if string(req.Input) != "{}" {
			t.Errorf("%s: input = %s", body, req.Input)
		}
	}
}

func TestDecodeInvokeRequest_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code hyphae.ErrorCode
	}{
		{"not json", `id=1`, hyphae.ErrCodeInvalidRequest},
		{"unknown field", `{"id":"a:b","extra":1}`, hyphae.ErrCodeInvalidRequest},
		{"missing id", `{"input":{}}`, hyphae.ErrCodeInvalidRequest},
		{"id without provider", `{"id":"abc"}`, hyphae.ErrCodeInvalidRequest},
		{"array input", `{"id":"a:b","input":[1,2]}`, hyphae.ErrCodeInvalidRequest},
		{"string input", `{"id":"a:b","input":"x"}`, hyphae.ErrCodeInvalidRequest},
		{"other payment header", `{"id":"a:b","payment":{"header":"Authorization","value":"x"}}`, hyphae.ErrCodeUnsupportedPaymentHeader},
		{"empty payment value", `{"id":"a:b","payment":{"header":"X-PAYMENT","value":""}}`, hyphae.ErrCodeInvalidRequest},
		{"header injection", `{"id":"a:b","payment":{"header":"X-PAYMENT","value":"a\r\nHost: evil"}}`, hyphae.ErrCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInvokeRequest(strings.NewReader(tt.body), 0)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := hyphae.CodeOf(err); code != tt.code {
				t.Errorf("code = %q, want %q (%v)", code, tt.code, err)
			}
		})
	}
}

func TestDecodeInvokeRequest_TooLarge(t *testing.T) {
	body := `{"id":"a:b","input":{"blob":"` + strings.Repeat("x", 200) + `"}}`
	_, err := DecodeInvokeRequest(strings.NewReader(body), 64)
	if hyphae.CodeOf(err) != hyphae.ErrCodeBodyTooLarge {
		t.Fatalf("got %v", err)
	}
}

func TestFlattenQuery(t *testing.T) {
	q := url.Values{"fixed": {"1"}}
	input := []byte(`{"q":"hello world","n":3,"flag":true,"nested":{"a":[1, 2]},"none":null}`)
	if err := FlattenQuery(q, input); err != nil {
		t.Fatalf("FlattenQuery: %v", err)
	}

	want := map[string]string{
		"fixed":  "1",
		"q":      "hello world",
		"n":      "3",
		"flag":   "true",
		"nested": `{"a":[1,2]}`,
		"none":   "null",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}
