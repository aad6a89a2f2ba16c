package parsing

import (
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/openmarket/ledgerapi"
)

func sign1Bytes(t *testing.T, payload []byte, tagged bool) []byte {
	t.Helper()
	arr := []any{[]byte{0xa0}, map[int]any{}, payload, []byte("signature")}
	var (
		data []byte
		err  error
	)
	if tagged {
		data, err = cbor.Marshal(cbor.Tag{Number: 18, Content: arr})
	} else {
		data, err = cbor.Marshal(arr)
	}
	assert.NoError(t, err)
	return data
}

func TestExtractCOSEPayload(t *testing.T) {
	for _, tagged := range []bool{true, false} {
		payload, err := ExtractCOSEPayload(sign1Bytes(t, []byte("hello"), tagged))
		assert.NoError(t, err)
		check.Equal(t, "hello", string(payload))
	}
}

func TestExtractCOSEPayload_Invalid(t *testing.T) {
	threeElems, err := cbor.Marshal([]any{[]byte{}, map[int]any{}, []byte("x")})
	assert.NoError(t, err)
	wrongTag, err := cbor.Marshal(cbor.Tag{Number: 98, Content: []any{1, 2, 3, 4}})
	assert.NoError(t, err)
	textPayload, err := cbor.Marshal([]any{[]byte{}, map[int]any{}, "text", []byte("sig")})
	assert.NoError(t, err)

	tests := []struct {
		name    string
		input   []byte
		errText string
	}{
		{"not cbor", []byte{0xff, 0x00}, "parse COSE array"},
		{"wrong length", threeElems, "expected 4 elements"},
		{"wrong tag", wrongTag, "unexpected CBOR tag"},
		{"text payload", textPayload, "invalid payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractCOSEPayload(tt.input)
			check.Error(t, err)
			check.True(t, strings.Contains(err.Error(), tt.errText))
		})
	}
}

func TestParseReceipt(t *testing.T) {
	want := ledgerapi.Receipt{ID: "r-1", ItemID: 4, Buyer: "0xbuyer", Price: "100", Royalty: "10", Proceeds: "90"}
	payload, err := cbor.Marshal(want)
	assert.NoError(t, err)

	got, err := ParseReceipt(sign1Bytes(t, payload, true))
	assert.NoError(t, err)
	check.Equal(t, want, *got)

	_, err = ParseReceipt(sign1Bytes(t, []byte("garbage"), true))
	check.Error(t, err)
}
