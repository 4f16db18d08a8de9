package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/haukened/vanish/internal/crypto"
)

// TestStringToAlgorithm covers the DecodeHook behavior for various inputs.
func TestStringToAlgorithm(t *testing.T) {
	algType := reflect.TypeOf(crypto.Algorithm(""))
	tests := []struct {
		name      string
		fromType  reflect.Type
		toType    reflect.Type
		input     interface{}
		expectVal interface{}
		expectErr bool
	}{
		{
			name:      "aes lowercase",
			fromType:  reflect.TypeOf(""),
			toType:    algType,
			input:     "aes-256-gcm",
			expectVal: crypto.AES256GCM,
		},
		{
			name:      "xchacha mixed case with spaces",
			fromType:  reflect.TypeOf(""),
			toType:    algType,
			input:     "  XChaCha20-Poly1305 ",
			expectVal: crypto.XChaCha20Poly1305,
		},
		{
			name:      "typed value from defaults struct",
			fromType:  algType,
			toType:    algType,
			input:     crypto.XChaCha20Poly1305,
			expectVal: crypto.XChaCha20Poly1305,
		},
		{
			name:      "unknown algorithm",
			fromType:  reflect.TypeOf(""),
			toType:    algType,
			input:     "rot13",
			expectErr: true,
		},
		{
			name:      "empty string",
			fromType:  reflect.TypeOf(""),
			toType:    algType,
			input:     "",
			expectErr: true,
		},
		{
			name:      "other target type passes through",
			fromType:  reflect.TypeOf(""),
			toType:    reflect.TypeOf(""),
			input:     "aes-256-gcm",
			expectVal: "aes-256-gcm",
		},
		{
			name:      "non-string source passes through",
			fromType:  reflect.TypeOf(0),
			toType:    algType,
			input:     42,
			expectVal: 42,
		},
	}

	hook := StringToAlgorithm().(func(reflect.Type, reflect.Type, interface{}) (interface{}, error))
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := hook(tc.fromType, tc.toType, tc.input)
			if tc.expectErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.expectVal) {
				t.Fatalf("got %#v want %#v", got, tc.expectVal)
			}
		})
	}
}

func TestStringToAlgorithmInDecoder(t *testing.T) {
	var out struct {
		Cipher crypto.Algorithm `mapstructure:"cipher"`
		Wait   time.Duration    `mapstructure:"wait"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(mapstructure.StringToTimeDurationHookFunc(), StringToAlgorithm()),
		Result:     &out,
	})
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	if err := dec.Decode(map[string]any{"cipher": "XCHACHA20-POLY1305", "wait": "90s"}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Cipher != crypto.XChaCha20Poly1305 || out.Wait != 90*time.Second {
		t.Fatalf("unexpected decode result %+v", out)
	}
}
