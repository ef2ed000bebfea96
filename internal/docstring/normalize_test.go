package docstring

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `{"a":"b"}`, want: `{"a":"b"}`},
		{name: "whitespace", in: "\n  {\"a\":\"b\"}  \n", want: `{"a":"b"}`},
		{name: "json fence", in: "```json\n{\"a\":\"b\"}\n```", want: `{"a":"b"}`},
		{name: "upper fence", in: "```JSON\n{\"a\":\"b\"}\n```\n", want: `{"a":"b"}`},
		{name: "bare fence", in: "```\n{\"a\":\"b\"}\n```", want: `{"a":"b"}`},
		{name: "unterminated fence", in: "```json\n{\"a\":\"b\"}\n", want: `{"a":"b"}`},
		{name: "stray fences", in: "{\"a\":\"b\"}\n```", want: `{"a":"b"}`},
		{name: "stray opening line", in: "```json\n\n{\"a\":\"b\"}", want: `{"a":"b"}`},
		{name: "single line fence", in: "```json{\"a\":\"b\"}```", want: `{"a":"b"}`},
		{name: "backticks in value", in: "{\"a\":\"uses ``` inside\"}", want: "{\"a\":\"uses ``` inside\"}"},
		{name: "backticks in fenced value", in: "```json\n{\"a\":\"uses ``` inside\"}\n```", want: "{\"a\":\"uses ``` inside\"}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFiltersUnrequestedKeys(t *testing.T) {
	docs, err := Parse("```json\n{\"foo\":\"Does foo.\",\"extra\":\"nope\"}\n```", []string{"foo", "bar"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if want := (Map{"foo": "Does foo."}); !reflect.DeepEqual(docs, want) {
		t.Fatalf("expected %v, got %v", want, docs)
	}
}

func TestParseRejectsMalformedOutput(t *testing.T) {
	for _, raw := range []string{
		"Here are your docstrings!",
		`["foo"]`,
		`null`,
		`{"foo": 42}`,
		"",
	} {
		if _, err := Parse(raw, []string{"foo"}); !errors.Is(err, ErrMalformedOutput) {
			t.Fatalf("Parse(%q): expected ErrMalformedOutput, got %v", raw, err)
		}
	}
}

func TestParseKeepsBackticksInDocstrings(t *testing.T) {
	docs, err := Parse("{\"foo\":\"Example:\\n```js\\nfoo()\\n```\"}", []string{"foo"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := docs["foo"]; got != "Example:\n```js\nfoo()\n```" {
		t.Fatalf("backticks inside the docstring were altered: %q", got)
	}
}

func TestParseEmptyObject(t *testing.T) {
	docs, err := Parse(`{}`, []string{"foo"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no docstrings, got %v", docs)
	}
}
