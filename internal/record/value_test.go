package record

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, v Value) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestValue_MarshalJSON(t *testing.T) {
	d := time.Date(2025, 3, 12, 0, 0, 0, 0, time.Local)

	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"title", Title("ACME"), `{"title":[{"type":"text","text":{"content":"ACME"}}]}`},
		{"empty title", Title(""), `{"title":[]}`},
		{"rich text", RichText("営業部"), `{"rich_text":[{"type":"text","text":{"content":"営業部"}}]}`},
		{"empty rich text", RichText(""), `{"rich_text":[]}`},
		{"select", Select("A"), `{"select":{"name":"A"}}`},
		{"null select", Select(""), `{"select":null}`},
		{"multi select", MultiSelect("Tanaka", "", "Sato"), `{"multi_select":[{"name":"Tanaka"},{"name":"Sato"}]}`},
		{"empty multi select", MultiSelect(), `{"multi_select":[]}`},
		{"phone", Phone("03-1234-5678"), `{"phone_number":"03-1234-5678"}`},
		{"null phone", Phone(""), `{"phone_number":null}`},
		{"email", Email("a@b.jp"), `{"email":"a@b.jp"}`},
		{"null email", Email(""), `{"email":null}`},
		{"date", Date(&d), `{"date":{"start":"2025-03-12T00:00:00"}}`},
		{"null date", Date(nil), `{"date":null}`},
		{"checkbox", Checkbox(true), `{"checkbox":true}`},
		{"null number", Number(nil), `{"number":null}`},
		{"people", People("u-1"), `{"people":[{"object":"user","id":"u-1"}]}`},
		{"no people", People(), `{"people":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.want, encode(t, tt.v))
		})
	}
}

func TestValue_LongTextIsSplit(t *testing.T) {
	long := strings.Repeat("あ", maxTextRunes+5)
	var decoded struct {
		RichText []struct {
			Text struct {
				Content string `json:"content"`
			} `json:"text"`
		} `json:"rich_text"`
	}
	require.NoError(t, json.Unmarshal([]byte(encode(t, RichText(long))), &decoded))
	require.Len(t, decoded.RichText, 2)
	assert.Equal(t, maxTextRunes, len([]rune(decoded.RichText[0].Text.Content)))
	assert.Equal(t, 5, len([]rune(decoded.RichText[1].Text.Content)))
}

func TestValue_UnknownKind(t *testing.T) {
	_, err := json.Marshal(Value{Kind: "files"})
	assert.Error(t, err)
}

func TestProperties_DeterministicJSON(t *testing.T) {
	p := Properties{"b": Checkbox(false), "a": Title("x"), "c": Select("")}
	first, err := p.JSON()
	require.NoError(t, err)
	for range 10 {
		again, err := p.JSON()
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
	assert.True(t, strings.Index(string(first), `"a"`) < strings.Index(string(first), `"b"`))
}

func TestProperties_Native(t *testing.T) {
	p := Properties{"t": Title("x"), "s": Select(""), "m": MultiSelect("a")}
	n := p.Native()
	assert.Equal(t, "x", n["t"])
	assert.Nil(t, n["s"])
	assert.Equal(t, []string{"a"}, n["m"])
}
